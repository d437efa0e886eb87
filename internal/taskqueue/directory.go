package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
)

// ErrDuplicateTask is returned by Enqueue when the task id already exists
// anywhere in the directory tree.
var ErrDuplicateTask = errors.New("task id already exists")

// ErrNotFound is returned by operations that look up a task or completion
// record by id when none exists.
var ErrNotFound = errors.New("task not found")

// PausedMarker is the well-known file whose presence halts claiming.
const PausedMarker = "PAUSED"

const (
	subdirQueued     = "queued"
	subdirInProgress = "in_progress"
	subdirComplete   = "complete"
	subdirFailed     = "failed"
	orderFile        = "tasks.json"
)

// Directory is the on-disk task directory: an ordering file plus one
// subdirectory per task state.
type Directory struct {
	root string
	lock *flock.Flock
}

// Open creates the directory tree (if absent) rooted at root and returns a
// Directory bound to it. Safe to call from both the daemon and the
// controller against the same shared-filesystem path.
func Open(root string) (*Directory, error) {
	for _, sub := range []string{subdirQueued, subdirInProgress, subdirComplete, subdirFailed} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}
	orderPath := filepath.Join(root, orderFile)
	if _, err := os.Stat(orderPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(orderPath, []byte("[]"), 0o644); err != nil {
			return nil, fmt.Errorf("init %s: %w", orderFile, err)
		}
	}
	return &Directory{
		root: root,
		lock: flock.New(filepath.Join(root, orderFile+".lock")),
	}, nil
}

func (d *Directory) path(sub, id string) string {
	return filepath.Join(d.root, sub, id+".json")
}

// Paused reports whether the pause marker is present.
func (d *Directory) Paused() bool {
	_, err := os.Stat(filepath.Join(d.root, PausedMarker))
	return err == nil
}

// Pause creates the pause marker.
func (d *Directory) Pause() error {
	return os.WriteFile(filepath.Join(d.root, PausedMarker), []byte(fmt.Sprintf(`{"paused_at":%q}`, nowRFC3339())), 0o644)
}

// Resume removes the pause marker.
func (d *Directory) Resume() error {
	err := os.Remove(filepath.Join(d.root, PausedMarker))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// QueueDepth reports the number of tasks currently waiting in queued/,
// for the heartbeat payload's queue_depth field.
func (d *Directory) QueueDepth() (int, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, subdirQueued))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", subdirQueued, err)
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			count++
		}
	}
	return count, nil
}

func (d *Directory) withOrderLock(fn func() error) error {
	if err := d.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", orderFile, err)
	}
	defer d.lock.Unlock()
	return fn()
}

func (d *Directory) readOrder() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(d.root, orderFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", orderFile, err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse %s: %w", orderFile, err)
	}
	return ids, nil
}

func (d *Directory) writeOrder(ids []string) error {
	data, err := json.MarshalIndent(ids, "", " ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(d.root, orderFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(d.root, orderFile))
}

// Order returns a snapshot of the ordering file.
func (d *Directory) Order() ([]string, error) {
	var ids []string
	err := d.withOrderLock(func() error {
		var readErr error
		ids, readErr = d.readOrder()
		return readErr
	})
	return ids, err
}

// readTaskFile loads a queued task file, returning (nil, nil) if it no
// longer exists — tasks.json may list ids whose files
// have already left queued/.
func readTaskFile(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse task %s: %w", path, err)
	}
	return &t, nil
}

func sortedQueuedIDs(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, subdirQueued))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	sort.Strings(ids)
	return ids, nil
}
