package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"amphigory/internal/taskqueue"
)

// listTasks returns the live queue view: queued and in-progress tasks in
// tasks.json order.
func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	views, err := a.Queue.List()
	if err != nil {
		a.logError("list_tasks_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// cancelQueuedTask removes a waiting task (and its queued downstream
// dependents) from queued/ so it is never claimed.
// In-progress tasks are cancelled over the link instead.
func (a *API) cancelQueuedTask(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	if err := a.Queue.Cancel(id); err != nil {
		if errors.Is(err, taskqueue.ErrNotQueued) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		a.logError("cancel_queued_task_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// listFailedTasks returns the failed-tasks view.
func (a *API) listFailedTasks(w http.ResponseWriter, r *http.Request) {
	completions, err := a.Queue.ListFailed()
	if err != nil {
		a.logError("list_failed_tasks_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, completions)
}

// dismissFailedTask removes a failed completion record without resubmitting
// it.
func (a *API) dismissFailedTask(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	if err := a.Queue.DismissFailed(id); err != nil {
		if errors.Is(err, taskqueue.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		a.logError("dismiss_failed_task_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type resubmitResponse struct {
	TaskID string `json:"task_id"`
}

// resubmitFailedTask enqueues a fresh task with the same inputs as the
// failed completion identified by id.
func (a *API) resubmitFailedTask(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")

	// The failed completion's own Task snapshot carries the kind, so the
	// new id can't be minted until it's read; NewTaskID is supplied the
	// original's kind via a short round trip through ListFailed.
	completions, err := a.Queue.ListFailed()
	if err != nil {
		a.logError("resubmit_failed_task_lookup_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var kind taskqueue.Kind
	found := false
	for _, c := range completions {
		if c.TaskID == id && c.Task != nil {
			kind = c.Task.Type
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, taskqueue.ErrNotFound)
		return
	}

	newID := a.NewTaskID(kind)
	resubmittedID, err := a.Queue.Resubmit(id, newID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, taskqueue.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		a.logError("resubmit_failed_task_failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, resubmitResponse{TaskID: resubmittedID})
}
