package httpapi

import "net/http"

// pause creates the PAUSED marker so consumers stop claiming.
func (a *API) pause(w http.ResponseWriter, r *http.Request) {
	if err := a.Queue.Pause(); err != nil {
		a.logError("pause_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// resume removes the PAUSED marker.
func (a *API) resume(w http.ResponseWriter, r *http.Request) {
	if err := a.Queue.Resume(); err != nil {
		a.logError("resume_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
