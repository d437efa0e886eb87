package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"amphigory/internal/classify"
	"amphigory/internal/disc"
	"amphigory/internal/metadata"
	"amphigory/internal/taskqueue"
)

func scanOutcomeFixture(fp string) ScanOutcome {
	return ScanOutcome{
		Fingerprint: fp,
		Scan: &disc.ScanResult{
			DiscName: "Heat",
			DiscKind: "bluray",
			Tracks: []disc.ScannedTrack{
				{Number: 0, Duration: 6300, Chapters: 24,
					Audio:     []disc.AudioStream{{Language: "en"}, {Language: "en"}, {Language: "en"}},
					Subtitles: []disc.SubtitleStream{{Language: "en"}, {Language: "fr"}, {Language: "de"}}},
				{Number: 1, Duration: 120, Chapters: 1,
					Audio: []disc.AudioStream{{Language: "en"}}},
			},
		},
	}
}

func TestIngestScanStoresDiscAndClassifiesTracks(t *testing.T) {
	_, _, store := newControllerTestDeps(t)

	outcome := scanOutcomeFixture("fp-ingest")
	require.NoError(t, IngestScan(context.Background(), store, outcome))

	withTracks, err := store.GetDiscWithTracks(context.Background(), "fp-ingest")
	require.NoError(t, err)
	require.NotNil(t, withTracks)
	require.Len(t, withTracks.Tracks, 2)

	byNumber := map[int]metadata.Track{}
	for _, tr := range withTracks.Tracks {
		byNumber[tr.TrackNumber] = tr
	}
	require.Equal(t, string(classify.LabelMainFeature), byNumber[0].ClassificationLabel)
	require.Equal(t, string(classify.ConfidenceHigh), byNumber[0].ClassificationConfidence)
	require.Equal(t, string(classify.LabelTrailers), byNumber[1].ClassificationLabel)
}

func TestIngestScanIsIdempotentPerFingerprint(t *testing.T) {
	_, _, store := newControllerTestDeps(t)

	outcome := scanOutcomeFixture("fp-ingest")
	require.NoError(t, IngestScan(context.Background(), store, outcome))
	require.NoError(t, IngestScan(context.Background(), store, outcome))

	withTracks, err := store.GetDiscWithTracks(context.Background(), "fp-ingest")
	require.NoError(t, err)
	require.Len(t, withTracks.Tracks, 2)
}

func TestIngestScanCompletionsSweepsOnlyNewScans(t *testing.T) {
	_, queue, store := newControllerTestDeps(t)

	outcome := scanOutcomeFixture("fp-sweep")
	result, err := json.Marshal(outcome)
	require.NoError(t, err)

	scanTask := taskqueue.Task{ID: taskqueue.NewID(taskqueue.KindScan), Type: taskqueue.KindScan, CreatedAt: time.Now().UTC()}
	require.NoError(t, queue.Enqueue(scanTask))
	claimed, err := queue.ClaimNext(taskqueue.OwnerDaemon)
	require.NoError(t, err)
	require.NoError(t, queue.CompleteTask(*claimed, taskqueue.Completion{
		TaskID:      claimed.ID,
		Status:      taskqueue.CompletionSuccess,
		CompletedAt: time.Now().UTC(),
		Result:      result,
	}))

	seen := map[string]struct{}{}
	ingested, err := IngestScanCompletions(context.Background(), store, queue, seen)
	require.NoError(t, err)
	require.Equal(t, []string{scanTask.ID}, ingested)

	withTracks, err := store.GetDiscWithTracks(context.Background(), "fp-sweep")
	require.NoError(t, err)
	require.NotNil(t, withTracks)

	ingested, err = IngestScanCompletions(context.Background(), store, queue, seen)
	require.NoError(t, err)
	require.Empty(t, ingested)
}
