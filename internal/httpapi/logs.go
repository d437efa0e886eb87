package httpapi

import (
	"net/http"
	"strconv"

	"amphigory/internal/logging"
)

// listLogs serves recent structured log events from the in-memory stream
// hub: `?since=<seq>` resumes from a sequence number, `?limit=` bounds the
// page. The browser UI polls this to render a live activity feed without a
// second connection into the process.
func (a *API) listLogs(w http.ResponseWriter, r *http.Request) {
	if a.Logs == nil {
		writeJSON(w, http.StatusOK, logsResponse{})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))

	var events []logging.LogEvent
	var next uint64
	if since == 0 {
		events, next = a.Logs.Tail(limit)
	} else {
		var err error
		events, next, err = a.Logs.Fetch(r.Context(), since, limit, false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, logsResponse{Events: events, Next: next})
}

type logsResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
