package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"amphigory/internal/disc"
	"amphigory/internal/metadata"
	"amphigory/internal/producer"
	"amphigory/internal/services/drapto"
	"amphigory/internal/taskqueue"
)

type fakeTranscoder struct {
	outputPath string
	err        error
}

func (f *fakeTranscoder) Encode(ctx context.Context, inputPath, outputDir string, opts drapto.EncodeOptions) (string, error) {
	if opts.Progress != nil {
		opts.Progress(drapto.ProgressUpdate{Type: drapto.EventTypeEncodingProgress, Percent: 10})
	}
	if f.err != nil {
		return "", f.err
	}
	return f.outputPath, nil
}

func newControllerTestDeps(t *testing.T) (ControllerDeps, *taskqueue.Directory, *metadata.Store) {
	t.Helper()
	queue, err := taskqueue.Open(t.TempDir())
	require.NoError(t, err)
	store, err := metadata.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	deps := ControllerDeps{
		Queue:      queue,
		Store:      store,
		Transcoder: &fakeTranscoder{},
		NewTaskID:  taskqueue.NewID,
		InboxDir:   t.TempDir(),
	}
	return deps, queue, store
}

func seedTrack(t *testing.T, store *metadata.Store, fp string) {
	t.Helper()
	_, err := store.SaveScan(context.Background(), fp, &disc.ScanResult{
		DiscName: "Heat",
		DiscKind: "bluray",
		Tracks:   []disc.ScannedTrack{{Number: 0, Duration: 7200}},
	})
	require.NoError(t, err)
}

func TestHandleTranscodeSucceedsAndEnqueuesInsert(t *testing.T) {
	deps, queue, store := newControllerTestDeps(t)
	seedTrack(t, store, "fp-1")

	inputDir := t.TempDir()
	producedPath := filepath.Join(inputDir, "produced.mp4")
	require.NoError(t, os.WriteFile(producedPath, []byte("video"), 0o644))
	deps.Transcoder = &fakeTranscoder{outputPath: producedPath}

	ripped := filepath.Join(inputDir, "ripped.mkv")
	require.NoError(t, os.WriteFile(ripped, []byte("mkv"), 0o644))

	wantOutput := filepath.Join(t.TempDir(), "heat.mp4")
	payload, err := json.Marshal(producer.TranscodePayload{DiscFingerprint: "fp-1", TrackNumber: 0, PresetName: "film"})
	require.NoError(t, err)
	task := taskqueue.Task{
		ID:      taskqueue.NewID(taskqueue.KindTranscode),
		Type:    taskqueue.KindTranscode,
		Input:   &ripped,
		Output:  wantOutput,
		Payload: payload,
	}

	_, err = deps.handleTranscode(context.Background(), task)
	require.NoError(t, err)
	require.FileExists(t, wantOutput)

	withTracks, err := store.GetDiscWithTracks(context.Background(), "fp-1")
	require.NoError(t, err)
	require.Equal(t, metadata.TrackTranscoded, withTracks.Tracks[0].Status)
	require.Equal(t, ripped, withTracks.Tracks[0].RippedPath)
	require.Equal(t, wantOutput, withTracks.Tracks[0].TranscodedPath)
	require.Equal(t, "film", withTracks.Tracks[0].PresetName)

	inserted, err := queue.ClaimNext(taskqueue.OwnerController)
	require.NoError(t, err)
	require.NotNil(t, inserted)
	require.Equal(t, taskqueue.KindInsert, inserted.Type)
	require.Equal(t, wantOutput, *inserted.Input)
}

func TestHandleTranscodeFailurePropagatesWithoutEnqueueingInsert(t *testing.T) {
	deps, queue, store := newControllerTestDeps(t)
	seedTrack(t, store, "fp-1")
	deps.Transcoder = &fakeTranscoder{err: errors.New("drapto crashed")}

	inputDir := t.TempDir()
	ripped := filepath.Join(inputDir, "ripped.mkv")
	require.NoError(t, os.WriteFile(ripped, []byte("mkv"), 0o644))

	payload, _ := json.Marshal(producer.TranscodePayload{DiscFingerprint: "fp-1", TrackNumber: 0})
	task := taskqueue.Task{
		ID:      taskqueue.NewID(taskqueue.KindTranscode),
		Type:    taskqueue.KindTranscode,
		Input:   &ripped,
		Output:  filepath.Join(t.TempDir(), "heat.mp4"),
		Payload: payload,
	}

	_, err := deps.handleTranscode(context.Background(), task)
	require.Error(t, err)

	next, err := queue.ClaimNext(taskqueue.OwnerController)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestHandleInsertMovesFileAndMarksTrackComplete(t *testing.T) {
	deps, _, store := newControllerTestDeps(t)
	seedTrack(t, store, "fp-1")

	inputDir := t.TempDir()
	transcoded := filepath.Join(inputDir, "transcoded.mp4")
	require.NoError(t, os.WriteFile(transcoded, []byte("video"), 0o644))
	libraryPath := filepath.Join(t.TempDir(), "library", "heat.mp4")

	payload, err := json.Marshal(producer.InsertPayload{DiscFingerprint: "fp-1", TrackNumber: 0})
	require.NoError(t, err)
	task := taskqueue.Task{
		ID:      taskqueue.NewID(taskqueue.KindInsert),
		Type:    taskqueue.KindInsert,
		Input:   &transcoded,
		Output:  libraryPath,
		Payload: payload,
	}

	_, err = deps.handleInsert(context.Background(), task)
	require.NoError(t, err)
	require.FileExists(t, libraryPath)
	require.NoFileExists(t, transcoded)

	withTracks, err := store.GetDiscWithTracks(context.Background(), "fp-1")
	require.NoError(t, err)
	require.Equal(t, metadata.TrackComplete, withTracks.Tracks[0].Status)
	require.Equal(t, libraryPath, withTracks.Tracks[0].InsertedPath)
}
