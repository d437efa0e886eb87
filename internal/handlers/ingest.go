package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"amphigory/internal/classify"
	"amphigory/internal/metadata"
	"amphigory/internal/taskqueue"
)

// IngestScan stores a finished scan under its fingerprint and records the
// classifier's verdict on every track. SaveScan
// replaces the disc's tracks wholesale, so re-ingesting the same
// completion after a controller restart converges to the same rows.
func IngestScan(ctx context.Context, store *metadata.Store, outcome ScanOutcome) error {
	if outcome.Fingerprint == "" || outcome.Scan == nil {
		return fmt.Errorf("scan outcome is missing fingerprint or scan body")
	}

	if _, err := store.SaveScan(ctx, outcome.Fingerprint, outcome.Scan); err != nil {
		return fmt.Errorf("save scan: %w", err)
	}

	withTracks, err := store.GetDiscWithTracks(ctx, outcome.Fingerprint)
	if err != nil {
		return fmt.Errorf("reload disc: %w", err)
	}
	if withTracks == nil {
		return fmt.Errorf("disc %s vanished after save", outcome.Fingerprint)
	}

	byNumber := make(map[int]int64, len(withTracks.Tracks))
	for _, t := range withTracks.Tracks {
		byNumber[t.TrackNumber] = t.ID
	}

	for _, result := range classify.Classify(outcome.Scan.Tracks) {
		trackID, ok := byNumber[result.TrackNumber]
		if !ok {
			continue
		}
		if err := store.UpdateTrackClassification(ctx, trackID,
			string(result.Label), string(result.Confidence), result.Score, result.IsAlternateMain); err != nil {
			return fmt.Errorf("record classification for track %d: %w", result.TrackNumber, err)
		}
	}
	return nil
}

// IngestScanCompletions walks the terminal completions for successful scan
// tasks and ingests any whose id is not in seen, recording ingested ids
// back into seen. It returns the ids ingested this pass. The seen set only
// suppresses repeat work within one controller lifetime — after a restart
// everything is re-ingested, which is safe because IngestScan is
// idempotent per fingerprint.
func IngestScanCompletions(ctx context.Context, store *metadata.Store, queue *taskqueue.Directory, seen map[string]struct{}) ([]string, error) {
	completions, err := queue.ListCompleted()
	if err != nil {
		return nil, err
	}

	var ingested []string
	for _, c := range completions {
		if c.Status != taskqueue.CompletionSuccess {
			continue
		}
		if c.Task == nil || c.Task.Type != taskqueue.KindScan {
			continue
		}
		if _, ok := seen[c.TaskID]; ok {
			continue
		}

		var outcome ScanOutcome
		if err := json.Unmarshal(c.Result, &outcome); err != nil {
			seen[c.TaskID] = struct{}{}
			continue
		}
		if err := IngestScan(ctx, store, outcome); err != nil {
			return ingested, fmt.Errorf("ingest scan %s: %w", c.TaskID, err)
		}
		seen[c.TaskID] = struct{}{}
		ingested = append(ingested, c.TaskID)
	}
	return ingested, nil
}
