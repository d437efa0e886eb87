package taskqueue

import (
	"errors"
	"os"
)

// TaskState is the directory a live task currently sits in.
type TaskState string

const (
	StateQueued     TaskState = "queued"
	StateInProgress TaskState = "in_progress"
)

// TaskView pairs a live task with its current state for the task-listing
// surface.
type TaskView struct {
	Task  Task      `json:"task"`
	State TaskState `json:"state"`
}

// List returns the live tasks (queued and in-progress) in tasks.json
// order. Ids whose files have left both directories are skipped per
// tasks.json is allowed to list departed ids; terminal tasks are
// reachable through ListFailed and
// the complete/ records instead.
func (d *Directory) List() ([]TaskView, error) {
	ids, err := d.Order()
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, 0, len(ids))
	for _, id := range ids {
		task, err := readTaskFile(d.path(subdirQueued, id))
		if err != nil {
			return nil, err
		}
		if task != nil {
			views = append(views, TaskView{Task: *task, State: StateQueued})
			continue
		}
		task, err = readTaskFile(d.path(subdirInProgress, id))
		if err != nil {
			return nil, err
		}
		if task != nil {
			views = append(views, TaskView{Task: *task, State: StateInProgress})
		}
	}
	return views, nil
}

// ErrNotQueued is returned by Cancel when the task is not waiting in
// queued/ — either it never existed or a consumer already claimed it.
var ErrNotQueued = errors.New("task is not queued")

// Cancel removes a queued task so it will never be claimed, along with any queued downstream tasks
// whose input is the cancelled task's output — a transcode makes no
// sense once its rip is gone. A task already in in_progress/ cannot be
// cancelled here; that path goes through the link's cancel RPC.
func (d *Directory) Cancel(taskID string) error {
	path := d.path(subdirQueued, taskID)
	task, err := readTaskFile(path)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrNotQueued
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	downstream, err := d.Downstream(task.Output)
	if err != nil {
		return err
	}
	for _, dep := range downstream {
		if err := os.Remove(d.path(subdirQueued, dep.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
