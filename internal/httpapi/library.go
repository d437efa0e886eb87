package httpapi

import (
	"net/http"

	"amphigory/internal/metadata"
)

// libraryQuery binds the library listing's query parameters.
// medium and media_type are both accepted; metadata.DiscFilter only has one
// Kind/MediaType pair in this schema (Kind doubles as medium), so medium
// takes precedence when both are supplied.
type libraryQuery struct {
	Status    string `schema:"status"`
	Medium    string `schema:"medium"`
	MediaType string `schema:"media_type"`
	Search    string `schema:"q"`
}

func (a *API) listLibrary(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var query libraryQuery
	if err := a.decoder.Decode(&query, r.Form); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	kind := query.Medium
	if kind == "" {
		kind = query.MediaType
	}

	discs, err := a.Store.ListDiscs(r.Context(), metadata.DiscFilter{
		Status:    query.Status,
		Kind:      kind,
		MediaType: query.MediaType,
		Search:    query.Search,
	})
	if err != nil {
		a.logError("list_library_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, discs)
}
