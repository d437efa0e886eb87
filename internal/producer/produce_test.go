package producer

import (
	"os"
	"path/filepath"
	"testing"

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

func TestProcessSelections_EnqueuesRipThenTranscodePair(t *testing.T) {
	queue := openTestQueue(t)
	p := New(queue, filepath.Join(t.TempDir(), "ripped"), filepath.Join(t.TempDir(), "inbox"))

	ids, err := p.ProcessSelections("abc123", []Selection{
		{TrackNumber: 0, OutputFilename: "movie"},
	})
	if err != nil {
		t.Fatalf("ProcessSelections: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected rip+transcode pair, got %d ids: %v", len(ids), ids)
	}
	if ids[0] >= ids[1] {
		t.Fatalf("expected rip id %q to sort before transcode id %q", ids[0], ids[1])
	}

	order, err := queue.Order()
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("expected 2 entries in order index, got %d", len(order))
	}
}

func TestProcessSelections_SkipsStagesAlreadyComplete(t *testing.T) {
	queue := openTestQueue(t)
	p := New(queue, t.TempDir(), t.TempDir())

	rippedFile := filepath.Join(t.TempDir(), "already-ripped.mkv")
	if err := writeDummyFile(rippedFile); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	ids, err := p.ProcessSelections("abc123", []Selection{
		{TrackNumber: 0, OutputFilename: "movie", RippedPath: rippedFile},
	})
	if err != nil {
		t.Fatalf("ProcessSelections: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected only the transcode stage to be enqueued, got %d: %v", len(ids), ids)
	}

	task, err := queue.ClaimNext(taskqueue.OwnerController)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if task == nil {
		t.Fatalf("expected a claimable transcode task")
	}
	if task.Type != taskqueue.KindTranscode {
		t.Fatalf("expected transcode task, got %s", task.Type)
	}
	if task.Input == nil || *task.Input != rippedFile {
		t.Fatalf("expected transcode input to point at the already-ripped file, got %+v", task.Input)
	}
}

func TestProcessSelections_SkipsEntirelyCompleteTrack(t *testing.T) {
	queue := openTestQueue(t)
	p := New(queue, t.TempDir(), t.TempDir())

	insertedFile := filepath.Join(t.TempDir(), "inserted.mp4")
	if err := writeDummyFile(insertedFile); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	ids, err := p.ProcessSelections("abc123", []Selection{
		{TrackNumber: 0, OutputFilename: "movie", InsertedPath: insertedFile},
	})
	if err != nil {
		t.Fatalf("ProcessSelections: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected nothing enqueued for a fully complete track, got %v", ids)
	}
}

func writeDummyFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

func TestProcessSelections_EmitsInsertOnlyForTranscodedTrack(t *testing.T) {
	queue := openTestQueue(t)
	inbox := t.TempDir()
	p := New(queue, t.TempDir(), inbox)

	transcodedFile := filepath.Join(t.TempDir(), "movie.mp4")
	if err := writeDummyFile(transcodedFile); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	ids, err := p.ProcessSelections("abc123", []Selection{
		{TrackNumber: 0, OutputFilename: "movie", TranscodedPath: transcodedFile},
	})
	if err != nil {
		t.Fatalf("ProcessSelections: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected a single insert task, got %v", ids)
	}

	claimed, err := queue.ClaimNext(taskqueue.OwnerController)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.Type != taskqueue.KindInsert {
		t.Fatalf("expected insert task claimable immediately, got %+v", claimed)
	}
	if claimed.Input == nil || *claimed.Input != transcodedFile {
		t.Fatalf("expected insert input %q, got %+v", transcodedFile, claimed.Input)
	}
	if claimed.Output != filepath.Join(inbox, "movie.mp4") {
		t.Fatalf("unexpected insert output %q", claimed.Output)
	}
}
