package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"amphigory/internal/producer"
)

type processSelectionRequest struct {
	TrackNumber      int    `json:"track_number"`
	OutputFilename   string `json:"output_filename"`
	PresetName       string `json:"preset_name,omitempty"`
	ExpectedDuration int    `json:"expected_duration,omitempty"`
	ExpectedSize     int64  `json:"expected_size,omitempty"`
}

type processTracksRequest struct {
	Selections []processSelectionRequest `json:"selections"`
}

type processTracksResponse struct {
	EnqueuedTaskIDs []string `json:"enqueued_task_ids"`
}

// processTracks is the entry point for "process selected tracks":
// it looks up each selected track's currently recorded path slots so the
// producer's resume check can skip already-complete stages, then hands the
// selections to the producer to enqueue rip/transcode pairs.
func (a *API) processTracks(w http.ResponseWriter, r *http.Request) {
	fingerprint := httprouter.ParamsFromContext(r.Context()).ByName("fingerprint")

	var req processTracksRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Selections) == 0 {
		writeError(w, http.StatusBadRequest, errEmptySelection)
		return
	}

	withTracks, err := a.Store.GetDiscWithTracks(r.Context(), fingerprint)
	if err != nil {
		a.logError("process_tracks_lookup_failed", err)
		writeError(w, statusForError(err), err)
		return
	}
	if withTracks == nil {
		writeError(w, http.StatusNotFound, ErrNotFound)
		return
	}

	byNumber := make(map[int]int, len(withTracks.Tracks))
	for i, t := range withTracks.Tracks {
		byNumber[t.TrackNumber] = i
	}

	selections := make([]producer.Selection, 0, len(req.Selections))
	for _, sel := range req.Selections {
		out := producer.Selection{
			TrackNumber:      sel.TrackNumber,
			OutputFilename:   sel.OutputFilename,
			PresetName:       sel.PresetName,
			ExpectedDuration: sel.ExpectedDuration,
			ExpectedSize:     sel.ExpectedSize,
		}
		if idx, ok := byNumber[sel.TrackNumber]; ok {
			track := withTracks.Tracks[idx]
			out.RippedPath = track.RippedPath
			out.TranscodedPath = track.TranscodedPath
			out.InsertedPath = track.InsertedPath
		}
		selections = append(selections, out)
	}

	ids, err := a.Producer.ProcessSelections(fingerprint, selections)
	if err != nil {
		a.logError("process_tracks_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, processTracksResponse{EnqueuedTaskIDs: ids})
}
