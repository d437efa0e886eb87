package producer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"amphigory/internal/resume"
	"amphigory/internal/taskqueue"
)

// Selection is one track the user chose to process.
type Selection struct {
	TrackNumber      int    `json:"track_number"`
	OutputFilename   string `json:"output_filename"`
	PresetName       string `json:"preset_name,omitempty"`
	ExpectedDuration int    `json:"expected_duration,omitempty"`
	ExpectedSize     int64  `json:"expected_size,omitempty"`

	// RippedPath, TranscodedPath, and InsertedPath are the track's
	// currently recorded path slots, used to skip already-complete
	// stages via the resume reconciler.
	RippedPath     string
	TranscodedPath string
	InsertedPath   string
}

// RipPayload is the kind-specific payload carried by a rip task.
type RipPayload struct {
	DiscFingerprint string `json:"disc_fingerprint"`
	TrackNumber     int    `json:"track_number"`
}

// TranscodePayload is the kind-specific payload carried by a transcode task.
type TranscodePayload struct {
	DiscFingerprint string `json:"disc_fingerprint"`
	TrackNumber     int    `json:"track_number"`
	PresetName      string `json:"preset_name,omitempty"`
}

// InsertPayload is the kind-specific payload carried by an insert task.
// Insert tasks normally come from the transcode handler on success, once
// the transcoded file actually exists at Input. ProcessSelections emits one directly in a single case: the
// resume reconciler reports the track already transcoded but never
// inserted, so the input file is already present and the task is
// claimable immediately.
type InsertPayload struct {
	DiscFingerprint string `json:"disc_fingerprint"`
	TrackNumber     int    `json:"track_number"`
}

// Producer emits rip/transcode task pairs onto the shared task directory
// for a disc's selected tracks.
type Producer struct {
	queue     *taskqueue.Directory
	rippedDir string
	inboxDir  string
}

// New constructs a Producer rooted at queue, writing rip output under
// rippedDir and transcode output under inboxDir (both as configured in
// ControllerConfig).
func New(queue *taskqueue.Directory, rippedDir, inboxDir string) *Producer {
	return &Producer{queue: queue, rippedDir: rippedDir, inboxDir: inboxDir}
}

// discFolder is the per-disc subdirectory name both output trees share.
func discFolder(discFingerprint string) string {
	return discFingerprint
}

// ProcessSelections enqueues, for every selection not already satisfied on
// disk per the resume reconciler, only the stages it still needs: a
// rip+transcode pair, a transcode alone when the rip file exists, or a lone
// insert when the transcoded file exists. It returns the ids of every task
// actually enqueued, in enqueue order.
func (p *Producer) ProcessSelections(discFingerprint string, selections []Selection) ([]string, error) {
	var enqueued []string
	for _, sel := range selections {
		ripOutput := filepath.Join(p.rippedDir, discFolder(discFingerprint), sel.OutputFilename+".mkv")
		transcodeOutput := filepath.Join(p.inboxDir, discFolder(discFingerprint), sel.OutputFilename+".mp4")

		stages := resume.Remaining(resume.PathState{
			RippedPath:     sel.RippedPath,
			TranscodedPath: sel.TranscodedPath,
			InsertedPath:   sel.InsertedPath,
		})
		needsRip, needsTranscode := stageSetContains(stages, resume.StageRip), stageSetContains(stages, resume.StageTranscode)
		if !needsRip && !needsTranscode {
			if !stageSetContains(stages, resume.StageInsert) {
				continue
			}
			insertID, err := p.enqueueInsertOnly(discFingerprint, sel)
			if err != nil {
				return enqueued, err
			}
			enqueued = append(enqueued, insertID)
			continue
		}

		var ripTaskID string
		if needsRip {
			ripPayload, err := json.Marshal(RipPayload{DiscFingerprint: discFingerprint, TrackNumber: sel.TrackNumber})
			if err != nil {
				return enqueued, fmt.Errorf("marshal rip payload: %w", err)
			}
			ripTaskID = taskqueue.NewID(taskqueue.KindRip)
			ripTask := taskqueue.Task{
				ID:        ripTaskID,
				Type:      taskqueue.KindRip,
				CreatedAt: time.Now().UTC(),
				Input:     nil,
				Output:    ripOutput,
				Payload:   ripPayload,
			}
			if err := p.queue.Enqueue(ripTask); err != nil {
				return enqueued, fmt.Errorf("enqueue rip task: %w", err)
			}
			enqueued = append(enqueued, ripTaskID)
		}

		if needsTranscode {
			transcodePayload, err := json.Marshal(TranscodePayload{
				DiscFingerprint: discFingerprint,
				TrackNumber:     sel.TrackNumber,
				PresetName:      sel.PresetName,
			})
			if err != nil {
				return enqueued, fmt.Errorf("marshal transcode payload: %w", err)
			}
			input := ripOutput
			if !needsRip {
				input = sel.RippedPath
			}
			transcodeTask := taskqueue.Task{
				ID:        taskqueue.NewID(taskqueue.KindTranscode),
				Type:      taskqueue.KindTranscode,
				CreatedAt: time.Now().UTC(),
				Input:     &input,
				Output:    transcodeOutput,
				Payload:   transcodePayload,
			}
			if err := p.queue.Enqueue(transcodeTask); err != nil {
				return enqueued, fmt.Errorf("enqueue transcode task: %w", err)
			}
			enqueued = append(enqueued, transcodeTask.ID)
		}
	}
	return enqueued, nil
}

// enqueueInsertOnly covers the reconciler's [insert] case: the transcoded
// file already exists, so the insert task's dependency is satisfied on
// arrival and a consumer can claim it immediately.
func (p *Producer) enqueueInsertOnly(discFingerprint string, sel Selection) (string, error) {
	payload, err := json.Marshal(InsertPayload{DiscFingerprint: discFingerprint, TrackNumber: sel.TrackNumber})
	if err != nil {
		return "", fmt.Errorf("marshal insert payload: %w", err)
	}
	input := sel.TranscodedPath
	task := taskqueue.Task{
		ID:        taskqueue.NewID(taskqueue.KindInsert),
		Type:      taskqueue.KindInsert,
		CreatedAt: time.Now().UTC(),
		Input:     &input,
		Output:    filepath.Join(p.inboxDir, filepath.Base(sel.TranscodedPath)),
		Payload:   payload,
	}
	if err := p.queue.Enqueue(task); err != nil {
		return "", fmt.Errorf("enqueue insert task: %w", err)
	}
	return task.ID, nil
}

// Reconcile repairs the ordering index against queued/'s actual
// contents, returning the number of orphaned entries it re-appended.
func (p *Producer) Reconcile() (int, error) {
	return p.queue.ReconcileOrphans()
}

func stageSetContains(stages []resume.Stage, target resume.Stage) bool {
	for _, s := range stages {
		if s == target {
			return true
		}
	}
	return false
}
