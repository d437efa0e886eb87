package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"amphigory/internal/taskqueue"
)

func openTestQueue(t *testing.T) *taskqueue.Directory {
	t.Helper()
	dir, err := taskqueue.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	return dir
}

func TestLoop_DispatchesSuccessToCompletion(t *testing.T) {
	queue := openTestQueue(t)
	if err := queue.Enqueue(taskqueue.Task{ID: taskqueue.NewID(taskqueue.KindScan), Type: taskqueue.KindScan}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	handled := make(chan struct{}, 1)
	loop := New(queue, taskqueue.OwnerDaemon, map[taskqueue.Kind]Handler{
		taskqueue.KindScan: func(ctx context.Context, task taskqueue.Task) (json.RawMessage, error) {
			handled <- struct{}{}
			return json.RawMessage(`{"ok":true}`), nil
		},
	}, nil)
	loop.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go loop.Run(ctx)

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestLoop_HandlerErrorWritesFailedCompletion(t *testing.T) {
	queue := openTestQueue(t)
	taskID := taskqueue.NewID(taskqueue.KindScan)
	if err := queue.Enqueue(taskqueue.Task{ID: taskID, Type: taskqueue.KindScan}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	boom := errors.New("boom")
	done := make(chan struct{})
	loop := New(queue, taskqueue.OwnerDaemon, map[taskqueue.Kind]Handler{
		taskqueue.KindScan: func(ctx context.Context, task taskqueue.Task) (json.RawMessage, error) {
			defer close(done)
			return nil, boom
		},
	}, nil)
	loop.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go loop.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
	// Give the loop a moment to write the completion after the handler
	// returns.
	time.Sleep(50 * time.Millisecond)

	task, err := queue.ClaimNext(taskqueue.OwnerDaemon)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if task != nil {
		t.Fatalf("expected the task to already be terminal, but it was still claimable: %+v", task)
	}
}

func TestLoop_PausedMarkerHaltsClaiming(t *testing.T) {
	queue := openTestQueue(t)
	if err := queue.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := queue.Enqueue(taskqueue.Task{ID: taskqueue.NewID(taskqueue.KindScan), Type: taskqueue.KindScan}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	called := false
	loop := New(queue, taskqueue.OwnerDaemon, map[taskqueue.Kind]Handler{
		taskqueue.KindScan: func(ctx context.Context, task taskqueue.Task) (json.RawMessage, error) {
			called = true
			return nil, nil
		},
	}, nil)
	loop.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	if called {
		t.Fatal("handler ran while the queue was paused")
	}
}
