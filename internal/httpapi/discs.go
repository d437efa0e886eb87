package httpapi

import (
	"net/http"
	"os"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"amphigory/internal/metadata"
)

// getDisc returns a disc and its tracks keyed by fingerprint.
func (a *API) getDisc(w http.ResponseWriter, r *http.Request) {
	fingerprint := httprouter.ParamsFromContext(r.Context()).ByName("fingerprint")
	result, err := a.Store.GetDiscWithTracks(r.Context(), fingerprint)
	if err != nil {
		a.logError("get_disc_failed", err)
		writeError(w, statusForError(err), err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type discUpdateRequest struct {
	Title      *string `json:"title"`
	Year       *int    `json:"year"`
	ExternalID *string `json:"external_id"`
}

// updateDisc applies operator edits to a disc's title/year/external id.
func (a *API) updateDisc(w http.ResponseWriter, r *http.Request) {
	fingerprint := httprouter.ParamsFromContext(r.Context()).ByName("fingerprint")

	var req discUpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	update := metadata.DiscUpdate{Title: req.Title, Year: req.Year, ExternalID: req.ExternalID}
	if err := a.Store.UpdateDiscMetadata(r.Context(), fingerprint, update); err != nil {
		a.logError("update_disc_failed", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type flagDiscRequest struct {
	DiscID int64  `json:"disc_id"`
	Type   string `json:"type"`
	Notes  string `json:"notes"`
	Clear  bool   `json:"clear"`
}

// flagDisc sets or clears a disc's reprocessing flag.
func (a *API) flagDisc(w http.ResponseWriter, r *http.Request) {
	var req flagDiscRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var flag *metadata.ReprocessingFlag
	if !req.Clear {
		flag = &metadata.ReprocessingFlag{Type: req.Type, Notes: req.Notes}
	}
	if err := a.Store.FlagDisc(r.Context(), req.DiscID, flag); err != nil {
		a.logError("flag_disc_failed", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type trackUpdateRequest struct {
	Name           *string `json:"name"`
	Status         *string `json:"status"`
	PresetName     *string `json:"preset_name"`
	RippedPath     *string `json:"ripped_path"`
	TranscodedPath *string `json:"transcoded_path"`
	InsertedPath   *string `json:"inserted_path"`
}

// updateTrack applies operator edits to a single track, e.g. overriding
// which track is the main feature or retrying a specific preset.
func (a *API) updateTrack(w http.ResponseWriter, r *http.Request) {
	idParam := httprouter.ParamsFromContext(r.Context()).ByName("id")
	trackID, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req trackUpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	update := metadata.TrackUpdate{
		Name:           req.Name,
		PresetName:     req.PresetName,
		RippedPath:     req.RippedPath,
		TranscodedPath: req.TranscodedPath,
		InsertedPath:   req.InsertedPath,
	}
	if req.Status != nil {
		status := metadata.TrackStatus(*req.Status)
		update.Status = &status
	}

	if err := a.Store.UpdateTrack(r.Context(), trackID, update); err != nil {
		a.logError("update_track_failed", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// resetTrack deletes any files at the track's three pipeline paths
// (best-effort), clears the path fields, and restores status to
// discovered. The next processing run re-ingests the
// track from the rip stage.
func (a *API) resetTrack(w http.ResponseWriter, r *http.Request) {
	idParam := httprouter.ParamsFromContext(r.Context()).ByName("id")
	trackID, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	track, err := a.Store.GetTrack(r.Context(), trackID)
	if err != nil {
		a.logError("reset_track_lookup_failed", err)
		writeError(w, statusForError(err), err)
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, ErrNotFound)
		return
	}

	for _, path := range []string{track.RippedPath, track.TranscodedPath, track.InsertedPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && a.Logger != nil {
			a.Logger.Warn("reset track file removal failed", "track_id", trackID, "path", path, "error", err)
		}
	}

	if err := a.Store.ResetTrack(r.Context(), trackID); err != nil {
		a.logError("reset_track_failed", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
