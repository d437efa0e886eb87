package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"amphigory/internal/logging"
	"amphigory/internal/metadata"
	"amphigory/internal/producer"
	"amphigory/internal/taskqueue"
)

// ErrNotFound is returned by Cleanup implementations when a named folder
// does not exist.
var ErrNotFound = errors.New("not found")

// errEmptySelection is returned when a "process selected tracks" request
// names no tracks.
var errEmptySelection = errors.New("at least one track selection is required")

// Cleanup is the collaborator the cleanup endpoints delegate to. The
// spec treats the underlying filesystem housekeeping as an external
// collaborator, so this package only defines the seam and routes to it.
type Cleanup interface {
	ListFolders() ([]CleanupFolder, error)
	DeleteFolder(name string) error
	MoveToLibraryRoot(name string) error
}

// CleanupFolder describes one leftover working folder eligible for
// deletion or promotion to the library root.
type CleanupFolder struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

// Producer is the subset of producer.Producer's behaviour the "process
// selected tracks" endpoint needs.
type Producer interface {
	ProcessSelections(discFingerprint string, selections []producer.Selection) ([]string, error)
}

// API wires the queue, metadata store, producer, and cleanup collaborator
// into the controller's HTTP surface.
type API struct {
	Queue     *taskqueue.Directory
	Store     *metadata.Store
	Producer  Producer
	Cleanup   Cleanup
	Drives    DriveSource
	Logs      *logging.StreamHub
	Logger    *slog.Logger
	NewTaskID func(taskqueue.Kind) string

	decoder *schema.Decoder
}

// New constructs an API. newTaskID mints fresh task ids for resubmission
// (normally taskqueue.NewID); it is a parameter so tests can supply
// deterministic ids.
func New(queue *taskqueue.Directory, store *metadata.Store, prod Producer, cleanup Cleanup, logger *slog.Logger, newTaskID func(taskqueue.Kind) string) *API {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &API{
		Queue:     queue,
		Store:     store,
		Producer:  prod,
		Cleanup:   cleanup,
		Logger:    logger,
		NewTaskID: newTaskID,
		decoder:   decoder,
	}
}

// Handler builds the full routed, CORS-wrapped HTTP handler.
func (a *API) Handler(allowedOrigins []string) http.Handler {
	router := httprouter.New()

	router.HandlerFunc(http.MethodGet, "/api/discs/:fingerprint", a.getDisc)
	router.HandlerFunc(http.MethodPatch, "/api/discs/:fingerprint", a.updateDisc)
	router.HandlerFunc(http.MethodPost, "/api/discs/:fingerprint/flag", a.flagDisc)
	router.HandlerFunc(http.MethodPost, "/api/discs/:fingerprint/process", a.processTracks)
	router.HandlerFunc(http.MethodPatch, "/api/tracks/:id", a.updateTrack)
	router.HandlerFunc(http.MethodPost, "/api/tracks/:id/reset", a.resetTrack)

	router.HandlerFunc(http.MethodGet, "/api/library", a.listLibrary)

	router.HandlerFunc(http.MethodGet, "/api/drives", a.listDrives)
	router.HandlerFunc(http.MethodGet, "/api/drives/status", a.driveStatus)

	router.HandlerFunc(http.MethodGet, "/api/logs", a.listLogs)

	router.HandlerFunc(http.MethodGet, "/api/tasks", a.listTasks)
	router.HandlerFunc(http.MethodDelete, "/api/tasks/queued/:id", a.cancelQueuedTask)
	router.HandlerFunc(http.MethodGet, "/api/tasks/failed", a.listFailedTasks)
	router.HandlerFunc(http.MethodPost, "/api/tasks/failed/:id/dismiss", a.dismissFailedTask)
	router.HandlerFunc(http.MethodPost, "/api/tasks/failed/:id/resubmit", a.resubmitFailedTask)

	router.HandlerFunc(http.MethodGet, "/api/cleanup/folders", a.listCleanupFolders)
	router.HandlerFunc(http.MethodDelete, "/api/cleanup/folders/:name", a.deleteCleanupFolder)
	router.HandlerFunc(http.MethodPost, "/api/cleanup/folders/:name/move", a.moveCleanupFolder)

	router.HandlerFunc(http.MethodPost, "/api/pause", a.pause)
	router.HandlerFunc(http.MethodPost, "/api/resume", a.resume)

	router.HandlerFunc(http.MethodPost, "/api/config/updated", a.notifyConfigUpdated)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
	})
	return corsMiddleware.Handler(router)
}

func (a *API) logError(event string, err error) {
	if a.Logger != nil {
		a.Logger.Error(event, slog.Any("error", err))
	}
}
