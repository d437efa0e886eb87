package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"amphigory/internal/config"
	"amphigory/internal/consumer"
	"amphigory/internal/disc"
	"amphigory/internal/disc/fingerprint"
	"amphigory/internal/drivestate"
	"amphigory/internal/errs"
	"amphigory/internal/handlers"
	"amphigory/internal/link"
	"amphigory/internal/logging"
	"amphigory/internal/services/makemkv"
	"amphigory/internal/taskqueue"
)

// runDaemon loads configuration, wires the drive state machine, the
// MakeMKV-backed scan/rip drivers, the disc watcher, and the persistent
// link client, then blocks until ctx is cancelled.
func runDaemon(ctx context.Context, configFlag string) error {
	cfg, cfgPath, err := config.LoadDaemonConfig(configFlag)
	if err != nil {
		return fmt.Errorf("load daemon config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure task directory: %w", err)
	}

	logHub := logging.NewStreamHub(512)
	logger, err := logging.NewFromConfig(cfg.LogDir, cfg.LogLevel, cfg.LogFormat, cfg.DaemonID, logHub)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if cfg.LogDir != "" {
		archive, err := logging.NewEventArchive(filepath.Join(cfg.LogDir, "events.jsonl"))
		if err != nil {
			logger.Warn("open log event archive", logging.Error(err))
		} else if archive != nil {
			logHub.AddSink(archive)
			defer archive.Close()
		}
		logging.CleanupOldLogs(logger, cfg.LogRetentionDays, logging.RetentionTarget{
			Dir:     cfg.LogDir,
			Pattern: "*.log",
			Exclude: []string{filepath.Join(cfg.LogDir, "amphigory.log")},
		})
	}
	logger.Info("amphigoryd starting",
		slog.String("event_type", "daemon_start"),
		slog.String("config_path", cfgPath),
		slog.String("daemon_id", cfg.DaemonID),
		slog.String("optical_drive", cfg.OpticalDrive))

	queueDir, err := taskqueue.Open(cfg.TaskDir)
	if err != nil {
		return fmt.Errorf("open task directory: %w", err)
	}

	makemkvBinary, err := config.DiscoverBinary(cfg.MakeMKVHints)
	if err != nil {
		return fmt.Errorf("locate makemkv binary: %w", err)
	}
	// The robot-mode parser narrates every MSG line; keep it to warnings so
	// task-level logs stay readable.
	ripper, err := makemkv.New(makemkvBinary, cfg.IdleRipTimeoutSecs,
		makemkv.WithLogger(logging.WithLevelOverride(logger, slog.LevelWarn)))
	if err != nil {
		return fmt.Errorf("init makemkv client: %w", err)
	}

	machine := drivestate.New(cfg.OpticalDrive)
	registry := link.NewRegistry()
	linkClient := link.NewClient(cfg.LinkURL, cfg.DaemonID, registry, logger)
	linkClient.MinBackoff = time.Duration(cfg.ReconnectMinSeconds) * time.Second
	linkClient.MaxBackoff = time.Duration(cfg.ReconnectMaxSeconds) * time.Second
	linkClient.OnConfigUpdated = func(_ context.Context, reason string) {
		// Validate the re-read file now so a broken edit surfaces
		// immediately. The reloaded values are not applied: the running
		// daemon keeps the configuration it loaded at startup until it is
		// restarted.
		if _, _, err := config.LoadDaemonConfig(configFlag); err != nil {
			logger.Warn("refetch configuration", logging.Error(err), slog.String("reason", reason))
			return
		}
		logger.Info("configuration refetched",
			slog.String("event_type", "config_updated"),
			slog.String("reason", reason))
	}

	sampler := logging.NewProgressSampler(5)
	progress := func(taskID string, percent float64, stage, message string) {
		if sampler.ShouldLog(percent, stage, message) {
			logger.Debug("task progress",
				slog.String(logging.FieldTaskID, taskID),
				slog.Float64(logging.FieldProgressPercent, percent),
				slog.String(logging.FieldProgressStage, stage))
		}
		env, err := link.NewEnvelope(link.TypeProgress, link.ProgressPayload{
			TaskID: taskID, Percent: percent, Stage: stage, Message: message,
		})
		if err != nil {
			return
		}
		_ = linkClient.Send(ctx, env)
	}

	daemonHandlers := handlers.NewDaemonHandlers(handlers.DaemonDeps{
		Machine:  machine,
		Scanner:  ripper,
		Ripper:   ripper,
		Device:   cfg.OpticalDrive,
		Progress: progress,
	})
	loop := consumer.New(queueDir, taskqueue.OwnerDaemon, daemonHandlers, logger)
	loop.PollInterval = 2 * time.Second
	if _, err := loop.Recover(); err != nil {
		logger.Warn("recover in-progress tasks", logging.Error(err))
	}

	registerDaemonRPCMethods(registry, machine, loop, queueDir)

	watcher := disc.NewWatcher(cfg.OpticalDrive,
		daemonInsertHandler(machine, ripper, linkClient, logger),
		daemonEjectHandler(machine, loop, linkClient, logger),
		queueDir.Paused,
		logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("start disc watcher", logging.Error(err))
	}
	defer watcher.Stop()

	go heartbeatLoop(ctx, cfg, queueDir, machine, loop, linkClient, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	linkErr := linkClient.Run(ctx, func(connCtx context.Context, conn *link.Conn) error {
		return announceAndSync(connCtx, conn, cfg, queueDir, machine, loop)
	})

	<-ctx.Done()
	logger.Info("amphigoryd shutting down", slog.String("event_type", "daemon_stop"))
	if linkErr != nil && ctx.Err() == nil {
		return linkErr
	}
	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
	default:
	}
	return nil
}

// announceAndSync sends the daemon_config registration followed by a sync
// snapshot every time the link (re)connects.
func announceAndSync(ctx context.Context, conn *link.Conn, cfg *config.DaemonConfig, queueDir *taskqueue.Directory, machine *drivestate.Machine, loop *consumer.Loop) error {
	cfgEnv, err := link.NewEnvelope(link.TypeDaemonConfig, link.DaemonConfigPayload{
		DaemonID:     cfg.DaemonID,
		Device:       cfg.OpticalDrive,
		Capabilities: []string{"scan", "rip"},
	})
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, cfgEnv); err != nil {
		return err
	}

	depth, _ := queueDir.QueueDepth()
	syncEnv, err := link.NewEnvelope(link.TypeSync, link.SyncPayload{
		DaemonID:      cfg.DaemonID,
		DriveState:    string(machine.State()),
		CurrentTaskID: loop.ActiveTaskID(),
		Percent:       machine.RipPercent(),
		Paused:        queueDir.Paused(),
		QueueDepth:    depth,
	})
	if err != nil {
		return err
	}
	return conn.Send(ctx, syncEnv)
}

// heartbeatLoop emits a periodic heartbeat envelope carrying queue depth,
// the current task id, and pause state.
func heartbeatLoop(ctx context.Context, cfg *config.DaemonConfig, queueDir *taskqueue.Directory, machine *drivestate.Machine, loop *consumer.Loop, client *link.Client, logger *slog.Logger) {
	interval := time.Duration(cfg.HeartbeatSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := queueDir.QueueDepth()
			if err != nil {
				logger.Warn("heartbeat: read queue depth", logging.Error(err))
				continue
			}
			env, err := link.NewEnvelope(link.TypeHeartbeat, link.HeartbeatPayload{
				DaemonID:      cfg.DaemonID,
				QueueDepth:    depth,
				CurrentTaskID: loop.ActiveTaskID(),
				Paused:        queueDir.Paused(),
			})
			if err != nil {
				continue
			}
			if err := client.Send(ctx, env); err != nil && !errors.Is(err, link.ErrNoConnection) {
				logger.Debug("heartbeat send failed", logging.Error(err))
			}
		}
	}
}

// daemonInsertHandler reacts to a disc-insert uevent: it transitions the
// drive state machine, resolves the mount point and fingerprint, caches a
// proactive scan, and notifies the controller so it can enqueue the
// scan task (the controller is the queue's sole producer).
func daemonInsertHandler(machine *drivestate.Machine, scanner handlers.Scanner, client *link.Client, logger *slog.Logger) disc.InsertHandler {
	return func(ctx context.Context, device string) error {
		mountPath, err := fingerprint.ResolveMountPoint(device)
		if err != nil {
			logger.Warn("resolve mount point on insert", logging.Error(err), logging.String("device", device))
			return err
		}
		medium := fingerprint.ClassifyMedium(mountPath, "")
		machine.Insert(mountPath, string(medium), mountPath)

		fp, err := fingerprint.ComputeTimeout(ctx, mountPath, medium, mountPath, 30*time.Second)
		if err == nil {
			_ = machine.SetFingerprint(fp)
			// Proactive scan: read the disc now, in the background, so the
			// scan task the controller is about to enqueue can be answered
			// from cache. CacheScan drops the result if the disc changed
			// while the scan ran.
			go func() {
				result, scanErr := scanner.Scan(ctx, device)
				if scanErr != nil {
					logger.Warn("proactive scan failed",
						logging.Error(scanErr),
						logging.String("device", device))
					return
				}
				if machine.CacheScan(fp, result) {
					logger.Info("proactive scan cached",
						slog.String("event_type", "proactive_scan_cached"),
						slog.String("device", device),
						slog.Int("track_count", len(result.Tracks)))
				}
			}()
		}

		env, envErr := link.NewEnvelope(link.TypeDiscEvent, link.DiscEventPayload{
			Device: device, Event: link.DiscEventInserted, Volume: mountPath, Medium: string(medium),
		})
		if envErr == nil {
			_ = client.Send(ctx, env)
		}
		return nil
	}
}

// daemonEjectHandler reacts to a media-removed uevent for the configured
// drive (disc.Watcher matches events by device name; the tracked mount
// path is not compared): it cancels any in-flight rip (emitting DISC_EJECTED),
// resets the state machine, and notifies the controller.
func daemonEjectHandler(machine *drivestate.Machine, loop *consumer.Loop, client *link.Client, logger *slog.Logger) disc.EjectHandler {
	return func(ctx context.Context, device string) error {
		if taskID := loop.ActiveTaskID(); taskID != "" {
			loop.Cancel(taskID, errs.ErrDiscEjected)
		}
		machine.Eject()

		env, err := link.NewEnvelope(link.TypeDiscEvent, link.DiscEventPayload{Device: device, Event: link.DiscEventEjected})
		if err == nil {
			_ = client.Send(ctx, env)
		}
		return nil
	}
}

// registerDaemonRPCMethods binds the controller-invokable RPC methods.
func registerDaemonRPCMethods(registry *link.Registry, machine *drivestate.Machine, loop *consumer.Loop, queueDir *taskqueue.Directory) {
	registry.Register("get_drive_status", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{
			"state": string(machine.State()),
			"volume": machine.Volume(),
			"medium": machine.Medium(),
			"fingerprint": machine.Fingerprint(),
			"active_task": loop.ActiveTaskID(),
			"rip_percent": machine.RipPercent(),
			"scan_task_id": machine.ScanTaskID(),
		}, nil
	})
	registry.Register("get_drives", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{"drives": []string{machine.Device}}, nil
	})
	registry.Register("cancel", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("decode cancel params: %w", err)
		}
		ok := loop.Cancel(req.TaskID, errs.ErrCancelled)
		return map[string]bool{"cancelled": ok}, nil
	})
}
