package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"amphigory/internal/cleanup"
	"amphigory/internal/config"
	"amphigory/internal/consumer"
	"amphigory/internal/handlers"
	"amphigory/internal/httpapi"
	"amphigory/internal/link"
	"amphigory/internal/logging"
	"amphigory/internal/metadata"
	"amphigory/internal/producer"
	"amphigory/internal/services/drapto"
	"amphigory/internal/taskqueue"
)

// runController loads configuration, opens the metadata store and task
// directory, wires the transcode/insert consumer loop, the link server,
// and the HTTP API, then blocks until ctx is cancelled.
func runController(ctx context.Context, configFlag string) error {
	cfg, cfgPath, err := config.LoadControllerConfig(configFlag)
	if err != nil {
		return fmt.Errorf("load controller config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logHub := logging.NewStreamHub(512)
	logger, err := logging.NewFromConfig(cfg.LogDir, cfg.LogLevel, cfg.LogFormat, "controller", logHub)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if cfg.LogDir != "" {
		logging.CleanupOldLogs(logger, cfg.LogRetentionDays, logging.RetentionTarget{
			Dir:     cfg.LogDir,
			Pattern: "*.log",
			Exclude: []string{filepath.Join(cfg.LogDir, "amphigory.log")},
		})
	}
	logger.Info("amphigoryctl starting",
		slog.String("event_type", "controller_start"),
		slog.String("config_path", cfgPath),
		slog.String("api_bind", cfg.APIBind),
		slog.String("link_bind", cfg.LinkBind))

	store, err := metadata.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer store.Close()

	queueDir, err := taskqueue.Open(cfg.TaskDir)
	if err != nil {
		return fmt.Errorf("open task directory: %w", err)
	}

	var transcoder drapto.Client
	if draptoBinary, err := config.DiscoverBinary(cfg.DraptoHints); err == nil {
		transcoder = drapto.NewCLI(drapto.WithBinary(draptoBinary))
	} else {
		logger.Info("drapto binary not found; encoding in-process",
			slog.String("event_type", "transcoder_fallback"))
		transcoder = drapto.NewLibrary()
	}

	prod := producer.New(queueDir, cfg.RippedDir, cfg.InboxDir)
	cleanupMgr := cleanup.NewManager(cfg.InboxDir, filepath.Dir(cfg.InboxDir))

	linkServer := link.NewServer(logger, time.Duration(cfg.RPCTimeoutSeconds)*time.Second)

	progress := func(taskID string, percent float64, stage, message string) {
		env, err := link.NewEnvelope(link.TypeProgress, link.ProgressPayload{
			TaskID: taskID, Percent: percent, Stage: stage, Message: message,
		})
		if err != nil {
			return
		}
		_ = broadcastToConsole(logger, env)
	}

	controllerHandlers := handlers.NewControllerHandlers(handlers.ControllerDeps{
		Queue:      queueDir,
		Store:      store,
		Transcoder: transcoder,
		NewTaskID:  taskqueue.NewID,
		InboxDir:   cfg.InboxDir,
		Progress:   progress,
	})
	loop := consumer.New(queueDir, taskqueue.OwnerController, controllerHandlers, logger)
	loop.PollInterval = time.Duration(cfg.ConsumerPollSeconds) * time.Second
	if _, err := loop.Recover(); err != nil {
		logger.Warn("recover in-progress tasks", logging.Error(err))
	}

	linkServer.OnDiscEvent = controllerDiscEventHandler(ctx, queueDir, logger)
	progressSampler := logging.NewProgressSampler(5)
	linkServer.OnProgress = func(p link.ProgressPayload) {
		if progressSampler.ShouldLog(p.Percent, p.Stage, p.Message) {
			logger.Debug("daemon progress",
				slog.String(logging.FieldTaskID, p.TaskID),
				slog.Float64(logging.FieldProgressPercent, p.Percent),
				slog.String(logging.FieldProgressStage, p.Stage))
		}
	}
	linkServer.OnDaemonConfig = func(p link.DaemonConfigPayload) {
		logger.Info("daemon connected", slog.String("event_type", "daemon_connected"), slog.String("daemon_id", p.DaemonID))
	}

	api := httpapi.New(queueDir, store, prod, cleanupMgr, logger, taskqueue.NewID)
	api.Drives = linkServer
	api.Logs = logHub

	mux := http.NewServeMux()
	mux.Handle("/link", linkServer.Handler())
	mux.Handle("/", api.Handler(nil))

	httpServer := &http.Server{Addr: cfg.APIBind, Handler: mux}
	linkHTTPServer := &http.Server{Addr: cfg.LinkBind, Handler: mux}

	go reconcileLoop(ctx, prod, cfg, logger)
	go scanIngestLoop(ctx, store, queueDir, logger)

	errCh := make(chan error, 3)
	go func() { errCh <- loop.Run(ctx) }()
	go func() { errCh <- serveUntilShutdown(ctx, httpServer) }()
	if cfg.LinkBind != cfg.APIBind {
		go func() { errCh <- serveUntilShutdown(ctx, linkHTTPServer) }()
	}

	<-ctx.Done()
	logger.Info("amphigoryctl shutting down", slog.String("event_type", "controller_stop"))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if cfg.LinkBind != cfg.APIBind {
		_ = linkHTTPServer.Shutdown(shutdownCtx)
	}

	for i := 0; i < cap(errCh); i++ {
		select {
		case err := <-errCh:
			if err != nil && !isShutdownErr(err) {
				return err
			}
		default:
		}
	}
	return nil
}

func serveUntilShutdown(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func isShutdownErr(err error) bool {
	return err == http.ErrServerClosed
}

// controllerDiscEventHandler enqueues a scan task whenever the daemon
// reports a disc insert. The controller is the queue's sole producer, so
// this is the only place a scan task is ever created.
func controllerDiscEventHandler(ctx context.Context, queueDir *taskqueue.Directory, logger *slog.Logger) func(link.DiscEventPayload) {
	return func(payload link.DiscEventPayload) {
		if payload.Event != link.DiscEventInserted {
			return
		}
		task := taskqueue.Task{
			ID:        taskqueue.NewID(taskqueue.KindScan),
			Type:      taskqueue.KindScan,
			CreatedAt: time.Now().UTC(),
			Input:     nil,
			Output:    "",
		}
		if err := queueDir.Enqueue(task); err != nil {
			logger.Warn("enqueue scan task", logging.Error(err), slog.String("device", payload.Device))
			return
		}
		logger.Info("disc inserted; scan task enqueued",
			slog.String("event_type", "disc_inserted"),
			slog.String("device", payload.Device),
			slog.String("task_id", task.ID))
	}
}

// reconcileLoop periodically repairs tasks.json against queued/'s actual
// contents.
func reconcileLoop(ctx context.Context, prod *producer.Producer, cfg *config.ControllerConfig, logger *slog.Logger) {
	interval := time.Duration(cfg.ReconcileIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := prod.Reconcile()
			if err != nil {
				logger.Warn("reconcile task order", logging.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("reconciled orphaned tasks", slog.String("event_type", "tasks_reconciled"), slog.Int("count", n))
			}
		}
	}
}

// scanIngestLoop sweeps complete/ for finished scan tasks and ingests each
// into the metadata store: save_scan keyed by the outcome's fingerprint,
// then classification of every track. The seen set resets on
// restart; re-ingesting a completion is idempotent per fingerprint.
func scanIngestLoop(ctx context.Context, store *metadata.Store, queueDir *taskqueue.Directory, logger *slog.Logger) {
	seen := make(map[string]struct{})
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ingested, err := handlers.IngestScanCompletions(ctx, store, queueDir, seen)
			if err != nil {
				logger.Warn("ingest scan completions", logging.Error(err))
			}
			for _, id := range ingested {
				logger.Info("scan result stored",
					slog.String("event_type", "scan_ingested"),
					slog.String("task_id", id))
			}
		}
	}
}

// broadcastToConsole is a placeholder push path for browser clients: the
// browser-facing realtime surface (HTMX/SSE) is an external collaborator,
// so the controller only needs to retain and log the progress stream here;
// a UI layer would subscribe to it separately.
func broadcastToConsole(logger *slog.Logger, env link.Envelope) error {
	var payload link.ProgressPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	logger.Debug("progress", slog.String("task_id", payload.TaskID), slog.Float64("percent", payload.Percent))
	return nil
}
