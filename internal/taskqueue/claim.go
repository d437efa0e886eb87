package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Enqueue writes a new task file and appends its id to the ordering
// file. The task file is written to a temp path and
// renamed into place so a concurrent claimer never observes a partially
// written file; the ordering append happens only after that rename
// succeeds, so a crash between the two leaves an orphan queued/*.json that
// a later ReconcileOrphans pass (the controller's periodic reconcile loop)
// repairs.
func (d *Directory) Enqueue(task Task) error {
	if task.ID == "" {
		return errors.New("taskqueue: task id is required")
	}
	if existing, err := d.locate(task.ID); err != nil {
		return err
	} else if existing != "" {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	data, err := json.MarshalIndent(task, "", " ")
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	tmp := filepath.Join(d.root, subdirQueued, task.ID+".json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write task %s: %w", task.ID, err)
	}
	if err := os.Rename(tmp, d.path(subdirQueued, task.ID)); err != nil {
		return fmt.Errorf("place task %s: %w", task.ID, err)
	}

	return d.withOrderLock(func() error {
		ids, err := d.readOrder()
		if err != nil {
			return err
		}
		ids = append(ids, task.ID)
		return d.writeOrder(ids)
	})
}

// locate returns the subdirectory a task id currently resides in, or "" if
// it is not present anywhere in the tree.
func (d *Directory) locate(id string) (string, error) {
	for _, sub := range []string{subdirQueued, subdirInProgress, subdirComplete, subdirFailed} {
		if _, err := os.Stat(d.path(sub, id)); err == nil {
			return sub, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", nil
}

// dependencyReady reports whether task's input path (if any) already
// exists on disk, i.e. the upstream stage that produces it has completed.
func dependencyReady(task *Task) bool {
	if task.Input == nil || *task.Input == "" {
		return true
	}
	_, err := os.Stat(*task.Input)
	return err == nil
}

// ClaimNext scans tasks.json in order for the first queued task routed to
// owner whose dependency is satisfied and atomically moves it to
// in_progress/. Ids whose files have left queued/ are skipped, and a file
// in queued/ that tasks.json does not list is not claimed. It returns
// (nil, nil) when nothing is currently claimable —
// that is not an error, just an empty queue from this owner's perspective.
//
// Claiming never takes the order lock: tasks.json is read without it
// (writers replace the file by rename, so a reader sees one whole version),
// and the contended step is the per-task os.Rename, which the filesystem
// makes atomic between racing consumers without any explicit locking.
func (d *Directory) ClaimNext(owner Owner) (*Task, error) {
	ids, err := d.readOrder()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		queuedPath := d.path(subdirQueued, id)
		task, err := readTaskFile(queuedPath)
		if err != nil {
			return nil, err
		}
		if task == nil {
			continue // already left queued/ (claimed, cancelled or done)
		}
		if RoutingOwner(task.Type) != owner {
			continue
		}
		if !dependencyReady(task) {
			continue
		}
		if err := os.Rename(queuedPath, d.path(subdirInProgress, id)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // another consumer won the race
			}
			return nil, fmt.Errorf("claim %s: %w", id, err)
		}
		return task, nil
	}
	return nil, nil
}

// Complete writes the terminal completion record for taskID to complete/
// and, for a failed outcome, also to failed/ (a copy, for the UI), and only
// then removes its in_progress file. Writing
// the completion first means a crash mid-way leaves the task claimed and
// completed-on-disk but not yet cleaned up, rather than silently losing
// the outcome — Recover treats a completion record with a
// lingering in_progress file as already done and finishes the cleanup.
func (d *Directory) Complete(taskID string, outcome Completion) error {
	outcome.TaskID = taskID
	data, err := json.MarshalIndent(outcome, "", " ")
	if err != nil {
		return fmt.Errorf("marshal completion %s: %w", taskID, err)
	}

	if err := d.writeCompletionFile(subdirComplete, taskID, data); err != nil {
		return err
	}
	if outcome.Status == CompletionFailed {
		if err := d.writeCompletionFile(subdirFailed, taskID, data); err != nil {
			return err
		}
	}

	if err := os.Remove(d.path(subdirInProgress, taskID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear in_progress %s: %w", taskID, err)
	}
	return nil
}

func (d *Directory) writeCompletionFile(sub, taskID string, data []byte) error {
	tmp := filepath.Join(d.root, sub, taskID+".json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write completion %s: %w", taskID, err)
	}
	if err := os.Rename(tmp, d.path(sub, taskID)); err != nil {
		return fmt.Errorf("place completion %s: %w", taskID, err)
	}
	return nil
}

// CompleteTask is Complete plus a snapshot of task attached to the
// completion record, so a later resubmission (see ListFailed/Resubmit) has
// the original type/input/output/payload to work from even after
// in_progress/<id>.json is gone.
func (d *Directory) CompleteTask(task Task, outcome Completion) error {
	outcome.Task = &task
	return d.Complete(task.ID, outcome)
}

// ListFailed returns every completion currently parked in failed/, newest
// first, for the operator-facing failed task list.
func (d *Directory) ListFailed() ([]Completion, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, subdirFailed))
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	var out []Completion
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.root, subdirFailed, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var c Completion
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Name(), err)
		}
		out = append(out, c)
	}
	sortCompletionsNewestFirst(out)
	return out, nil
}

// ListCompleted returns every terminal completion in complete/ (success
// and failed bodies alike), newest first. The controller's scan-ingest
// sweep reads this to find finished scans it has not stored yet.
func (d *Directory) ListCompleted() ([]Completion, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, subdirComplete))
	if err != nil {
		return nil, fmt.Errorf("list complete: %w", err)
	}
	var out []Completion
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.root, subdirComplete, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var c Completion
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Name(), err)
		}
		out = append(out, c)
	}
	sortCompletionsNewestFirst(out)
	return out, nil
}

func sortCompletionsNewestFirst(completions []Completion) {
	for i := 1; i < len(completions); i++ {
		for j := i; j > 0 && completions[j].CompletedAt.After(completions[j-1].CompletedAt); j-- {
			completions[j], completions[j-1] = completions[j-1], completions[j]
		}
	}
}

// DismissFailed removes a completion record from failed/ without
// resubmitting it.
func (d *Directory) DismissFailed(taskID string) error {
	if err := os.Remove(d.path(subdirFailed, taskID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return fmt.Errorf("dismiss %s: %w", taskID, err)
	}
	return nil
}

// Resubmit re-enqueues a fresh task with the same type/input/output/payload
// as the failed completion identified by taskID, under a new id, then
// removes the old failed/ record. It returns the new task's id.
func (d *Directory) Resubmit(taskID string, newID string, createdAt time.Time) (string, error) {
	data, err := os.ReadFile(d.path(subdirFailed, taskID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return "", fmt.Errorf("read failed completion %s: %w", taskID, err)
	}
	var completion Completion
	if err := json.Unmarshal(data, &completion); err != nil {
		return "", fmt.Errorf("decode failed completion %s: %w", taskID, err)
	}
	if completion.Task == nil {
		return "", fmt.Errorf("taskqueue: %s has no recorded task to resubmit from", taskID)
	}

	fresh := *completion.Task
	fresh.ID = newID
	fresh.CreatedAt = createdAt
	if err := d.Enqueue(fresh); err != nil {
		return "", err
	}
	if err := os.Remove(d.path(subdirFailed, taskID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("clear failed record %s: %w", taskID, err)
	}
	return fresh.ID, nil
}

// Downstream returns every queued task whose Input matches outputPath —
// the set a cancellation must also remove when an upstream stage is
// aborted.
func (d *Directory) Downstream(outputPath string) ([]Task, error) {
	ids, err := sortedQueuedIDs(d.root)
	if err != nil {
		return nil, fmt.Errorf("list queued: %w", err)
	}
	var matches []Task
	for _, id := range ids {
		task, err := readTaskFile(d.path(subdirQueued, id))
		if err != nil {
			return nil, err
		}
		if task == nil {
			continue
		}
		if task.Input != nil && *task.Input == outputPath {
			matches = append(matches, *task)
		}
	}
	return matches, nil
}

// Recover moves every in_progress task routed to owner back to queued/,
// for use at process startup: a task left in_progress belongs to a run
// that crashed before calling Complete, so it must be retried.
func (d *Directory) Recover(owner Owner) (int, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, subdirInProgress))
	if err != nil {
		return 0, fmt.Errorf("list in_progress: %w", err)
	}
	recovered := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		inProgressPath := d.path(subdirInProgress, id)

		if done, err := d.locate(id); err == nil && (done == subdirComplete || done == subdirFailed) {
			// A completion record exists already — a prior Complete call
			// was interrupted after writing it but before clearing
			// in_progress/. Finish that cleanup instead of re-queuing.
			if rmErr := os.Remove(inProgressPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return recovered, fmt.Errorf("clear stale in_progress %s: %w", id, rmErr)
			}
			continue
		}

		task, err := readTaskFile(inProgressPath)
		if err != nil {
			return recovered, err
		}
		if task == nil || RoutingOwner(task.Type) != owner {
			continue
		}
		if err := os.Rename(inProgressPath, d.path(subdirQueued, id)); err != nil {
			return recovered, fmt.Errorf("recover %s: %w", id, err)
		}
		recovered++
	}
	return recovered, nil
}

// ReconcileOrphans repairs tasks.json against the actual contents of
// queued/: any id present as a file but missing from the order (because a
// crash landed between Enqueue's rename and its order-file append) is
// appended back in filename order, which equals creation order given the
// zero-padded timestamp id format.
func (d *Directory) ReconcileOrphans() (int, error) {
	onDisk, err := sortedQueuedIDs(d.root)
	if err != nil {
		return 0, fmt.Errorf("list queued: %w", err)
	}
	added := 0
	err = d.withOrderLock(func() error {
		ids, err := d.readOrder()
		if err != nil {
			return err
		}
		known := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			known[id] = struct{}{}
		}
		for _, id := range onDisk {
			if _, ok := known[id]; ok {
				continue
			}
			ids = append(ids, id)
			added++
		}
		if added == 0 {
			return nil
		}
		return d.writeOrder(ids)
	})
	return added, err
}

// Timestamp returns t formatted the way task and completion records store
// timestamps: UTC, RFC 3339.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
