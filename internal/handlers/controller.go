package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"amphigory/internal/consumer"
	"amphigory/internal/errs"
	"amphigory/internal/metadata"
	"amphigory/internal/producer"
	"amphigory/internal/services/drapto"
	"amphigory/internal/taskqueue"
)

// ControllerDeps bundles everything the controller-side handlers close
// over.
type ControllerDeps struct {
	Queue      *taskqueue.Directory
	Store      *metadata.Store
	Transcoder drapto.Client
	NewTaskID  func(taskqueue.Kind) string
	InboxDir   string
	Progress   ProgressFunc
}

// NewControllerHandlers returns the transcode and insert handlers routed to
// the controller.
func NewControllerHandlers(deps ControllerDeps) map[taskqueue.Kind]consumer.Handler {
	return map[taskqueue.Kind]consumer.Handler{
		taskqueue.KindTranscode: deps.handleTranscode,
		taskqueue.KindInsert:    deps.handleInsert,
	}
}

// handleTranscode runs the encoder driver and, on success, enqueues
// the insert task for the same track. The insert task is never produced
// up front alongside the rip/transcode pair because its Input (the
// transcoded file) does not exist until this handler finishes — enqueueing
// it here is what lets taskqueue's dependency check do its job.
func (d ControllerDeps) handleTranscode(ctx context.Context, task taskqueue.Task) (json.RawMessage, error) {
	var payload producer.TranscodePayload
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return nil, errs.Wrap(errs.ErrValidation, "transcode", "decode payload", err)
		}
	}
	if task.Input == nil || *task.Input == "" {
		return nil, errs.Wrap(errs.ErrValidation, "transcode", "task missing input path", nil)
	}

	track, err := d.findTrack(ctx, payload.DiscFingerprint, payload.TrackNumber)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "transcode", "look up track", err)
	}
	if track != nil {
		transcoding := metadata.TrackTranscoding
		_ = d.Store.UpdateTrack(ctx, track.ID, metadata.TrackUpdate{Status: &transcoding})
	}

	outputDir := filepath.Dir(task.Output)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrOutputWriteFailed, "transcode", "create output directory", err)
	}

	producedPath, encErr := d.Transcoder.Encode(ctx, *task.Input, outputDir, drapto.EncodeOptions{
		PresetProfile: payload.PresetName,
		Progress: func(p drapto.ProgressUpdate) {
			if d.Progress != nil {
				d.Progress(task.ID, p.Percent, string(p.Type), p.Message)
			}
		},
	})
	if encErr != nil {
		return nil, classifyExternalError("transcode", "drapto", encErr)
	}

	if producedPath != task.Output {
		if err := os.Rename(producedPath, task.Output); err != nil {
			return nil, errs.Wrap(errs.ErrOutputWriteFailed, "transcode", "place output", err)
		}
	}

	if track != nil {
		// The transcode task's Input is the rip's output, so this is also
		// where the ripped path lands in the store: the daemon side never
		// opens the database.
		transcoded := metadata.TrackTranscoded
		update := metadata.TrackUpdate{
			Status:         &transcoded,
			RippedPath:     task.Input,
			TranscodedPath: &task.Output,
		}
		if payload.PresetName != "" {
			update.PresetName = &payload.PresetName
		}
		if err := d.Store.UpdateTrack(ctx, track.ID, update); err != nil {
			return nil, errs.Wrap(errs.ErrValidation, "transcode", "record transcoded path", err)
		}
	}

	if err := d.enqueueInsert(task, payload); err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "transcode", "enqueue insert task", err)
	}

	return json.Marshal(map[string]string{"output": task.Output})
}

func (d ControllerDeps) enqueueInsert(transcodeTask taskqueue.Task, payload producer.TranscodePayload) error {
	insertPayload, err := json.Marshal(producer.InsertPayload{
		DiscFingerprint: payload.DiscFingerprint,
		TrackNumber:     payload.TrackNumber,
	})
	if err != nil {
		return fmt.Errorf("marshal insert payload: %w", err)
	}
	output := filepath.Join(d.InboxDir, filepath.Base(transcodeTask.Output))
	input := transcodeTask.Output
	insertTask := taskqueue.Task{
		ID:        d.NewTaskID(taskqueue.KindInsert),
		Type:      taskqueue.KindInsert,
		CreatedAt: time.Now().UTC(),
		Input:     &input,
		Output:    output,
		Payload:   insertPayload,
	}
	return d.Queue.Enqueue(insertTask)
}

// handleInsert moves the finished encode into the library inbox and marks
// the track complete.
func (d ControllerDeps) handleInsert(ctx context.Context, task taskqueue.Task) (json.RawMessage, error) {
	var payload producer.InsertPayload
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return nil, errs.Wrap(errs.ErrValidation, "insert", "decode payload", err)
		}
	}
	if task.Input == nil || *task.Input == "" {
		return nil, errs.Wrap(errs.ErrValidation, "insert", "task missing input path", nil)
	}

	if err := os.MkdirAll(filepath.Dir(task.Output), 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrOutputWriteFailed, "insert", "create library directory", err)
	}
	if err := os.Rename(*task.Input, task.Output); err != nil {
		return nil, errs.Wrap(errs.ErrOutputWriteFailed, "insert", "move into library", err)
	}

	track, err := d.findTrack(ctx, payload.DiscFingerprint, payload.TrackNumber)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "insert", "look up track", err)
	}
	if track != nil {
		complete := metadata.TrackComplete
		if err := d.Store.UpdateTrack(ctx, track.ID, metadata.TrackUpdate{
			Status:       &complete,
			InsertedPath: &task.Output,
		}); err != nil {
			return nil, errs.Wrap(errs.ErrValidation, "insert", "record inserted path", err)
		}
	}

	return json.Marshal(map[string]string{"output": task.Output})
}

func (d ControllerDeps) findTrack(ctx context.Context, discFingerprint string, trackNumber int) (*metadata.Track, error) {
	withTracks, err := d.Store.GetDiscWithTracks(ctx, discFingerprint)
	if err != nil {
		return nil, err
	}
	if withTracks == nil {
		return nil, nil
	}
	for i := range withTracks.Tracks {
		if withTracks.Tracks[i].TrackNumber == trackNumber {
			return &withTracks.Tracks[i], nil
		}
	}
	return nil, nil
}
