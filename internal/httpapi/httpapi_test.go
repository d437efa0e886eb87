package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"amphigory/internal/disc"
	"amphigory/internal/metadata"
	"amphigory/internal/producer"
	"amphigory/internal/taskqueue"
)

type fakeCleanup struct {
	folders []CleanupFolder
	deleted []string
	moved   []string
}

func (f *fakeCleanup) ListFolders() ([]CleanupFolder, error) { return f.folders, nil }
func (f *fakeCleanup) DeleteFolder(name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}
func (f *fakeCleanup) MoveToLibraryRoot(name string) error {
	f.moved = append(f.moved, name)
	return nil
}

type fakeProducer struct {
	fingerprints []string
	selections   [][]producer.Selection
	enqueued     []string
}

func (f *fakeProducer) ProcessSelections(discFingerprint string, selections []producer.Selection) ([]string, error) {
	f.fingerprints = append(f.fingerprints, discFingerprint)
	f.selections = append(f.selections, selections)
	ids := []string{taskqueue.NewID(taskqueue.KindRip)}
	f.enqueued = append(f.enqueued, ids...)
	return ids, nil
}

func newTestAPI(t *testing.T) (*API, *taskqueue.Directory, *metadata.Store) {
	t.Helper()
	queue, err := taskqueue.Open(t.TempDir())
	require.NoError(t, err)

	store, err := metadata.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	api := New(queue, store, &fakeProducer{}, &fakeCleanup{}, nil, taskqueue.NewID)
	return api, queue, store
}

func TestPauseResumeEndpoints(t *testing.T) {
	api, queue, _ := newTestAPI(t)
	handler := api.Handler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/pause", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, queue.Paused())

	req = httptest.NewRequest(http.MethodPost, "/api/resume", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, queue.Paused())
}

func TestFailedTaskListDismissAndResubmit(t *testing.T) {
	api, queue, _ := newTestAPI(t)
	handler := api.Handler(nil)

	task := taskqueue.Task{ID: taskqueue.NewID(taskqueue.KindTranscode), Type: taskqueue.KindTranscode, CreatedAt: time.Now().UTC(), Output: "/library/disc.mp4"}
	require.NoError(t, queue.Enqueue(task))
	claimed, err := queue.ClaimNext(taskqueue.OwnerController)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	now := time.Now().UTC()
	require.NoError(t, queue.CompleteTask(*claimed, taskqueue.Completion{
		Status:      taskqueue.CompletionFailed,
		StartedAt:   now,
		CompletedAt: now,
		Error:       &taskqueue.ErrorInfo{Code: "external_tool", Message: "boom"},
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/failed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var completions []taskqueue.Completion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completions))
	require.Len(t, completions, 1)
	require.Equal(t, task.ID, completions[0].TaskID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks/failed/"+task.ID+"/resubmit", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp resubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TaskID)
	require.NotEqual(t, task.ID, resp.TaskID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/failed", nil))
	var afterResubmit []taskqueue.Completion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &afterResubmit))
	require.Empty(t, afterResubmit)

	requeued, err := queue.ClaimNext(taskqueue.OwnerController)
	require.NoError(t, err)
	require.NotNil(t, requeued)
	require.Equal(t, resp.TaskID, requeued.ID)
	require.Equal(t, task.Output, requeued.Output)
}

func TestDismissFailedTaskMissingReturnsNotFound(t *testing.T) {
	api, _, _ := newTestAPI(t)
	handler := api.Handler(nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks/failed/does-not-exist/dismiss", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDiscNotFound(t *testing.T) {
	api, _, _ := newTestAPI(t)
	handler := api.Handler(nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/discs/unknown-fingerprint", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDiscAndListLibrary(t *testing.T) {
	api, _, store := newTestAPI(t)
	handler := api.Handler(nil)

	result := &disc.ScanResult{
		DiscName: "Heat",
		DiscKind: "bluray",
		Tracks:   []disc.ScannedTrack{{Number: 0, Duration: 7200}},
	}
	_, err := store.SaveScan(context.Background(), "fp-1", result)
	require.NoError(t, err)

	title := "Heat (1995)"
	body, err := json.Marshal(discUpdateRequest{Title: &title})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/discs/fp-1", bytes.NewReader(body)))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/discs/fp-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var withTracks metadata.DiscWithTracks
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &withTracks))
	require.Equal(t, title, withTracks.Disc.Title)
	require.Len(t, withTracks.Tracks, 1)
}

func TestProcessTracksEnqueuesViaProducer(t *testing.T) {
	api, _, store := newTestAPI(t)
	handler := api.Handler(nil)
	fake := api.Producer.(*fakeProducer)

	result := &disc.ScanResult{
		DiscName: "Heat",
		DiscKind: "bluray",
		Tracks:   []disc.ScannedTrack{{Number: 0, Duration: 7200}},
	}
	_, err := store.SaveScan(context.Background(), "fp-1", result)
	require.NoError(t, err)

	body, err := json.Marshal(processTracksRequest{Selections: []processSelectionRequest{
		{TrackNumber: 0, OutputFilename: "heat"},
	}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/discs/fp-1/process", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp processTracksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.EnqueuedTaskIDs, 1)
	require.Equal(t, []string{"fp-1"}, fake.fingerprints)
	require.Len(t, fake.selections[0], 1)
	require.Equal(t, 0, fake.selections[0][0].TrackNumber)
}

func TestProcessTracksUnknownDiscReturnsNotFound(t *testing.T) {
	api, _, _ := newTestAPI(t)
	handler := api.Handler(nil)

	body, err := json.Marshal(processTracksRequest{Selections: []processSelectionRequest{{TrackNumber: 0, OutputFilename: "x"}}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/discs/unknown/process", bytes.NewReader(body)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLibraryFilters(t *testing.T) {
	api, _, _ := newTestAPI(t)
	handler := api.Handler(nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/library?status=ripped&q=Heat", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var discs []metadata.DiscSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &discs))
	require.Empty(t, discs)
}

func TestUpdateTrackValidatesID(t *testing.T) {
	api, _, _ := newTestAPI(t)
	handler := api.Handler(nil)

	body, _ := json.Marshal(trackUpdateRequest{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/tracks/not-a-number", bytes.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksShowsLiveQueue(t *testing.T) {
	api, queue, _ := newTestAPI(t)
	handler := api.Handler(nil)

	rip := taskqueue.Task{ID: taskqueue.NewID(taskqueue.KindRip), Type: taskqueue.KindRip, CreatedAt: time.Now().UTC(), Output: "/out/a.mkv"}
	require.NoError(t, queue.Enqueue(rip))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []taskqueue.TaskView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	require.Equal(t, rip.ID, views[0].Task.ID)
	require.Equal(t, taskqueue.StateQueued, views[0].State)
}

func TestCancelQueuedTask(t *testing.T) {
	api, queue, _ := newTestAPI(t)
	handler := api.Handler(nil)

	rip := taskqueue.Task{ID: taskqueue.NewID(taskqueue.KindRip), Type: taskqueue.KindRip, CreatedAt: time.Now().UTC(), Output: "/out/a.mkv"}
	require.NoError(t, queue.Enqueue(rip))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tasks/queued/"+rip.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	claimed, err := queue.ClaimNext(taskqueue.OwnerDaemon)
	require.NoError(t, err)
	require.Nil(t, claimed)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tasks/queued/"+rip.ID, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetTrackClearsPathsAndRemovesFiles(t *testing.T) {
	api, _, store := newTestAPI(t)
	handler := api.Handler(nil)

	result := &disc.ScanResult{
		DiscName: "Heat",
		DiscKind: "bluray",
		Tracks:   []disc.ScannedTrack{{Number: 0, Duration: 7200}},
	}
	_, err := store.SaveScan(context.Background(), "fp-1", result)
	require.NoError(t, err)

	withTracks, err := store.GetDiscWithTracks(context.Background(), "fp-1")
	require.NoError(t, err)
	require.Len(t, withTracks.Tracks, 1)
	trackID := withTracks.Tracks[0].ID

	ripped := filepath.Join(t.TempDir(), "heat.mkv")
	require.NoError(t, os.WriteFile(ripped, []byte("mkv"), 0o644))
	status := metadata.TrackRipped
	require.NoError(t, store.UpdateTrack(context.Background(), trackID, metadata.TrackUpdate{
		RippedPath: &ripped,
		Status:     &status,
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/tracks/%d/reset", trackID), nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, statErr := os.Stat(ripped)
	require.True(t, os.IsNotExist(statErr))

	track, err := store.GetTrack(context.Background(), trackID)
	require.NoError(t, err)
	require.Empty(t, track.RippedPath)
	require.Empty(t, track.TranscodedPath)
	require.Empty(t, track.InsertedPath)
	require.Equal(t, metadata.TrackDiscovered, track.Status)
}

type fakeDriveSource struct {
	connected bool
	method    string
	result    json.RawMessage
	err       error
}

func (f *fakeDriveSource) Connected() bool { return f.connected }
func (f *fakeDriveSource) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.method = method
	return f.result, f.err
}
func (f *fakeDriveSource) PushConfigUpdated(ctx context.Context, reason string) error {
	f.method = "config_updated:" + reason
	return f.err
}

func TestListDrivesProxiesLinkRPC(t *testing.T) {
	api, _, _ := newTestAPI(t)
	fake := &fakeDriveSource{connected: true, result: json.RawMessage(`{"drives":["/dev/sr0"]}`)}
	api.Drives = fake
	handler := api.Handler(nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drives", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "get_drives", fake.method)
	require.JSONEq(t, `{"drives":["/dev/sr0"]}`, rec.Body.String())
}

func TestDriveStatusOfflineReturnsServiceUnavailable(t *testing.T) {
	api, _, _ := newTestAPI(t)
	handler := api.Handler(nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drives/status", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
