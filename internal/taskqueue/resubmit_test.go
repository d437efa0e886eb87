package taskqueue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCompleteTaskPreservesTaskForResubmission(t *testing.T) {
	d := newTestDirectory(t)
	input := filepath.Join(t.TempDir(), "disc.mkv")
	if err := os.WriteFile(input, []byte("mkv"), 0o644); err != nil {
		t.Fatalf("seed input: %v", err)
	}
	task := Task{ID: NewID(KindTranscode), Type: KindTranscode, CreatedAt: time.Now().UTC(), Input: &input, Output: "/library/disc.mp4"}
	if err := d.Enqueue(task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := d.ClaimNext(OwnerController)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %+v, %v", claimed, err)
	}

	now := time.Now().UTC()
	outcome := Completion{
		Status:      CompletionFailed,
		StartedAt:   now,
		CompletedAt: now,
		Error:       &ErrorInfo{Code: "external_tool", Message: "drapto exited 1"},
	}
	if err := d.CompleteTask(*claimed, outcome); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	failed, err := d.ListFailed()
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed completion, got %d", len(failed))
	}
	if failed[0].Task == nil || failed[0].Task.Output != task.Output {
		t.Fatalf("expected recorded task snapshot with output %q, got %+v", task.Output, failed[0].Task)
	}
}

func TestResubmitEnqueuesFreshTaskAndClearsFailedRecord(t *testing.T) {
	d := newTestDirectory(t)
	input := filepath.Join(t.TempDir(), "disc.mkv")
	if err := os.WriteFile(input, []byte("mkv"), 0o644); err != nil {
		t.Fatalf("seed input: %v", err)
	}
	task := Task{ID: NewID(KindTranscode), Type: KindTranscode, CreatedAt: time.Now().UTC(), Input: &input, Output: "/library/disc.mp4"}
	if err := d.Enqueue(task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := d.ClaimNext(OwnerController)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %+v, %v", claimed, err)
	}
	now := time.Now().UTC()
	if err := d.CompleteTask(*claimed, Completion{Status: CompletionFailed, StartedAt: now, CompletedAt: now, Error: &ErrorInfo{Code: "external_tool"}}); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	newID := NewID(KindTranscode)
	resubmittedID, err := d.Resubmit(task.ID, newID, time.Now().UTC())
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if resubmittedID != newID {
		t.Fatalf("expected resubmitted id %s, got %s", newID, resubmittedID)
	}

	if failed, err := d.ListFailed(); err != nil || len(failed) != 0 {
		t.Fatalf("expected failed/ cleared after resubmission, got %+v, %v", failed, err)
	}

	requeued, err := d.ClaimNext(OwnerController)
	if err != nil {
		t.Fatalf("ClaimNext after resubmit: %v", err)
	}
	if requeued == nil || requeued.ID != newID || requeued.Output != task.Output {
		t.Fatalf("expected fresh task with same output, got %+v", requeued)
	}
}

func TestDismissFailedRemovesRecordWithoutRequeue(t *testing.T) {
	d := newTestDirectory(t)
	task := Task{ID: NewID(KindScan), Type: KindScan, CreatedAt: time.Now().UTC()}
	if err := d.Enqueue(task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := d.ClaimNext(OwnerDaemon)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %+v, %v", claimed, err)
	}
	now := time.Now().UTC()
	if err := d.CompleteTask(*claimed, Completion{Status: CompletionFailed, StartedAt: now, CompletedAt: now, Error: &ErrorInfo{Code: "disc_unreadable"}}); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	if err := d.DismissFailed(task.ID); err != nil {
		t.Fatalf("DismissFailed: %v", err)
	}
	if failed, err := d.ListFailed(); err != nil || len(failed) != 0 {
		t.Fatalf("expected failed/ empty after dismissal, got %+v, %v", failed, err)
	}
	if err := d.DismissFailed(task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second dismissal, got %v", err)
	}
}
