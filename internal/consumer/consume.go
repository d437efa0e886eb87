package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"amphigory/internal/errs"
	"amphigory/internal/logging"
	"amphigory/internal/taskqueue"
)

// Handler runs one task to completion and returns its result payload, or an
// error classified via errs.ClassifyError. Drivers are wired in
// as handlers keyed by taskqueue.Kind.
type Handler func(ctx context.Context, task taskqueue.Task) (result json.RawMessage, err error)

// Loop is a single-slot consumer bound to one owner (daemon or
// controller). Exactly one task is ever active
// per Loop, by construction — ClaimNext is only called again after the
// previous task's completion has been written.
type Loop struct {
	queue    *taskqueue.Directory
	owner    taskqueue.Owner
	handlers map[taskqueue.Kind]Handler
	logger   *slog.Logger

	// PollInterval governs the sleep between empty-queue and paused
	// polls. Defaults to 2s if zero.
	PollInterval time.Duration

	// activeMu guards the bookkeeping Cancel needs to reach the
	// in-flight task's context from outside the dispatch goroutine (an
	// eject notification or a controller "cancel" RPC both arrive on a
	// different goroutine than Run's claim/dispatch loop).
	activeMu     sync.Mutex
	activeTaskID string
	activeCancel context.CancelFunc
	cancelReason error
}

// New constructs a Loop for owner, dispatching claimed tasks to handlers.
func New(queue *taskqueue.Directory, owner taskqueue.Owner, handlers map[taskqueue.Kind]Handler, logger *slog.Logger) *Loop {
	return &Loop{queue: queue, owner: owner, handlers: handlers, logger: logger, PollInterval: 2 * time.Second}
}

// Recover moves this owner's orphaned in_progress tasks back to queued/.
// Call once at process startup before Run.
func (l *Loop) Recover() (int, error) {
	return l.queue.Recover(l.owner)
}

// Run blocks, repeatedly claiming and dispatching tasks, until ctx is
// cancelled. Each iteration checks the pause marker, claims, dispatches,
// and writes the completion.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if l.queue.Paused() {
			if !l.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		task, err := l.queue.ClaimNext(l.owner)
		if err != nil {
			return fmt.Errorf("consumer %s: claim: %w", l.owner, err)
		}
		if task == nil {
			if !l.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		l.dispatch(ctx, *task)
	}
}

// dispatch runs one claimed task's handler and writes its completion
// record. A missing handler for the task's kind is itself a failed
// completion rather than a panic — the routing table and the handler map
// are expected to stay in sync, but a stale task file from an older
// version of the software must not wedge the loop.
func (l *Loop) dispatch(ctx context.Context, task taskqueue.Task) {
	started := time.Now().UTC()
	handler, ok := l.handlers[task.Type]
	if !ok {
		l.complete(task, started, nil, fmt.Errorf("%w: %w for kind %q", errs.ErrValidation, ErrNoHandler, task.Type))
		return
	}

	if l.logger != nil {
		l.logger.Info("task claimed",
			slog.String("event_type", "task_claimed"),
			slog.String(logging.FieldTaskID, task.ID),
			slog.String("kind", string(task.Type)))
	}

	// Stamp the dispatch context so anything the handler logs (directly or
	// through logging.WithContext) carries the task id and owner.
	taskCtx, cancel := context.WithCancel(errs.WithOwner(errs.WithTaskID(ctx, task.ID), string(l.owner)))
	l.setActive(task.ID, cancel)
	logging.WithContext(taskCtx, l.logger).Debug("dispatching to driver", slog.String("kind", string(task.Type)))
	result, err := handler(taskCtx, task)
	reason := l.clearActive()
	cancel()

	if err != nil && reason != nil {
		err = errs.Wrap(reason, string(task.Type), "task cancelled", err)
	}
	l.complete(task, started, result, err)
}

// Cancel signals the driver running taskID to stop, tagging the resulting
// completion with reason (errs.ErrDiscEjected for an eject mid-task,
// errs.ErrCancelled for an operator-initiated "cancel" RPC). It is a
// no-op if taskID is not the task currently being dispatched — the caller
// races the claim loop harmlessly since a task that already completed
// cannot be cancelled after the fact.
func (l *Loop) Cancel(taskID string, reason error) bool {
	l.activeMu.Lock()
	defer l.activeMu.Unlock()
	if l.activeTaskID == "" || l.activeTaskID != taskID || l.activeCancel == nil {
		return false
	}
	l.cancelReason = reason
	l.activeCancel()
	return true
}

// ActiveTaskID returns the id of the task currently being dispatched, or ""
// if the loop is idle.
func (l *Loop) ActiveTaskID() string {
	l.activeMu.Lock()
	defer l.activeMu.Unlock()
	return l.activeTaskID
}

func (l *Loop) setActive(taskID string, cancel context.CancelFunc) {
	l.activeMu.Lock()
	defer l.activeMu.Unlock()
	l.activeTaskID = taskID
	l.activeCancel = cancel
	l.cancelReason = nil
}

func (l *Loop) clearActive() error {
	l.activeMu.Lock()
	defer l.activeMu.Unlock()
	reason := l.cancelReason
	l.activeTaskID = ""
	l.activeCancel = nil
	l.cancelReason = nil
	return reason
}

func (l *Loop) complete(task taskqueue.Task, started time.Time, result json.RawMessage, handlerErr error) {
	completed := time.Now().UTC()
	outcome := taskqueue.Completion{
		Status:          taskqueue.CompletionSuccess,
		StartedAt:       started,
		CompletedAt:     completed,
		DurationSeconds: completed.Sub(started).Seconds(),
		Result:          result,
	}
	if handlerErr != nil {
		details := errs.ClassifyError(handlerErr)
		outcome.Status = taskqueue.CompletionFailed
		outcome.Error = &taskqueue.ErrorInfo{
			Code:    string(details.Code),
			Message: details.Message,
			Detail:  details.Detail,
		}
		if outcome.Error.Message == "" {
			outcome.Error.Message = handlerErr.Error()
		}
	}

	if err := l.queue.CompleteTask(task, outcome); err != nil {
		if l.logger != nil {
			l.logger.Error("failed to write task completion",
				slog.String("event_type", "task_completion_write_failed"),
				slog.String("task_id", task.ID),
				slog.Any("error", err))
		}
		return
	}

	if l.logger != nil {
		level := slog.LevelInfo
		if handlerErr != nil {
			level = slog.LevelWarn
		}
		l.logger.Log(context.Background(), level, "task finished",
			slog.String("event_type", "task_finished"),
			slog.String("task_id", task.ID),
			slog.String("status", string(outcome.Status)))
	}
}

// sleep waits for PollInterval or ctx cancellation, reporting whether it
// returned because of the timer (true) rather than cancellation (false).
func (l *Loop) sleep(ctx context.Context) bool {
	interval := l.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// ErrNoHandler is returned (wrapped) when a claimed task's kind has no
// registered handler.
var ErrNoHandler = errors.New("no handler registered")
