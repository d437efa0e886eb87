package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"amphigory/internal/consumer"
	"amphigory/internal/disc"
	"amphigory/internal/disc/fingerprint"
	"amphigory/internal/drivestate"
	"amphigory/internal/errs"
	"amphigory/internal/producer"
	"amphigory/internal/services/makemkv"
	"amphigory/internal/taskqueue"
)

// Scanner is the subset of makemkv.Client's behaviour the scan handler
// needs; declared here, at the point of use, so tests can substitute a
// fake without a real disc.
type Scanner interface {
	Scan(ctx context.Context, device string) (*disc.ScanResult, error)
}

// ProgressFunc reports a running task's progress to whatever is listening
// (normally the persistent link's progress push). nil disables
// reporting.
type ProgressFunc func(taskID string, percent float64, stage, message string)

// DaemonDeps bundles everything the daemon-side handlers close over.
type DaemonDeps struct {
	Machine  *drivestate.Machine
	Scanner  Scanner
	Ripper   makemkv.Ripper
	Device   string
	Progress ProgressFunc
}

// NewDaemonHandlers returns the scan and rip handlers routed to the daemon.
func NewDaemonHandlers(deps DaemonDeps) map[taskqueue.Kind]consumer.Handler {
	return map[taskqueue.Kind]consumer.Handler{
		taskqueue.KindScan: deps.handleScan,
		taskqueue.KindRip:  deps.handleRip,
	}
}

// ScanOutcome is the success payload a scan completion carries: the disc's
// fingerprint plus the parsed scan. The controller's ingest sweep reads
// this out of complete/ and stores it — the fingerprint
// travels with the result because the daemon is the only process that can
// compute it from the mounted disc.
type ScanOutcome struct {
	Fingerprint string           `json:"fingerprint"`
	Scan        *disc.ScanResult `json:"scan"`
}

// handleScan runs the scan driver, reusing the proactively-cached
// scan result when the drive still holds the same disc it was computed
// against.
func (d DaemonDeps) handleScan(ctx context.Context, task taskqueue.Task) (json.RawMessage, error) {
	if err := d.Machine.StartScan(task.ID); err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "scan", "start_scan", err)
	}

	medium := fingerprint.ClassifyMedium(d.Machine.Volume(), d.Machine.Medium())
	fp, err := fingerprint.ComputeTimeout(ctx, d.Machine.Volume(), medium, d.Machine.Volume(), 30*time.Second)
	if err != nil {
		wrapped := errs.Wrap(errs.ErrDiscUnreadable, "scan", "compute fingerprint", err)
		_ = d.Machine.FailScan(wrapped)
		return nil, wrapped
	}
	_ = d.Machine.SetFingerprint(fp)

	if cached := d.Machine.ClaimScanCache(fp); cached != nil {
		if err := d.Machine.CompleteScan(cached); err != nil {
			return nil, errs.Wrap(errs.ErrValidation, "scan", "complete_scan", err)
		}
		return json.Marshal(ScanOutcome{Fingerprint: fp, Scan: cached})
	}

	result, err := d.Scanner.Scan(ctx, d.Device)
	if err != nil {
		wrapped := errs.Wrap(errs.ErrDiscUnreadable, "scan", "read disc", err)
		_ = d.Machine.FailScan(wrapped)
		return nil, wrapped
	}
	if err := d.Machine.CompleteScan(result); err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "scan", "complete_scan", err)
	}
	return json.Marshal(ScanOutcome{Fingerprint: fp, Scan: result})
}

// handleRip runs the ripper driver for the track named in the task's
// payload, moving the drive through ripping → scanned regardless of
// outcome.
func (d DaemonDeps) handleRip(ctx context.Context, task taskqueue.Task) (json.RawMessage, error) {
	var payload producer.RipPayload
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return nil, errs.Wrap(errs.ErrValidation, "rip", "decode payload", err)
		}
	}

	if err := d.Machine.StartRip(task.ID); err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "rip", "start_rip", err)
	}

	destDir := filepath.Dir(task.Output)
	discTitle := d.Machine.Fingerprint()

	producedPath, ripErr := d.Ripper.Rip(ctx, d.Device, discTitle, destDir, []int{payload.TrackNumber}, func(p makemkv.ProgressUpdate) {
		d.Machine.UpdateRipProgress(p.Percent)
		if d.Progress != nil {
			d.Progress(task.ID, p.Percent, p.Stage, p.Message)
		}
	})
	_ = d.Machine.FinishRip()
	if ripErr != nil {
		return nil, classifyExternalError("rip", "makemkv", ripErr)
	}

	if producedPath != task.Output {
		if err := os.Rename(producedPath, task.Output); err != nil {
			return nil, errs.Wrap(errs.ErrOutputWriteFailed, "rip", "place output", err)
		}
	}

	return json.Marshal(map[string]string{"output": task.Output})
}

func classifyExternalError(stage, tool string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrExternalTimeout, stage, fmt.Sprintf("%s timed out", tool), err)
	}
	if errors.Is(err, makemkv.ErrDiscRead) {
		return errs.Wrap(errs.ErrDiscUnreadable, stage, fmt.Sprintf("%s reported disc read errors", tool), err)
	}
	return errs.Wrap(errs.ErrExternalTool, stage, fmt.Sprintf("%s failed", tool), err)
}

var _ Scanner = (*makemkv.Client)(nil)
