package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (a *API) listCleanupFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := a.Cleanup.ListFolders()
	if err != nil {
		a.logError("list_cleanup_folders_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (a *API) deleteCleanupFolder(w http.ResponseWriter, r *http.Request) {
	name := httprouter.ParamsFromContext(r.Context()).ByName("name")
	if err := a.Cleanup.DeleteFolder(name); err != nil {
		a.logError("delete_cleanup_folder_failed", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) moveCleanupFolder(w http.ResponseWriter, r *http.Request) {
	name := httprouter.ParamsFromContext(r.Context()).ByName("name")
	if err := a.Cleanup.MoveToLibraryRoot(name); err != nil {
		a.logError("move_cleanup_folder_failed", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
