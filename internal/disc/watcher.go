package disc

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"amphigory/internal/logging"
)

// InsertHandler reacts to a disc insertion detected on device. An error
// return is logged and otherwise swallowed — the watcher keeps running
// regardless of what one handler invocation does.
type InsertHandler func(ctx context.Context, device string) error

// EjectHandler reacts to a disc removal detected on device. Same
// error-swallowing contract as InsertHandler.
type EjectHandler func(ctx context.Context, device string) error

// Watcher listens for udev netlink events on a block device matching the
// configured optical drive (SUBSYSTEM=block, ID_CDROM=1) and dispatches to
// InsertHandler or EjectHandler depending on whether ID_CDROM_MEDIA reports
// 1 (media present) or 0/absent (media removed). It never polls: a udev
// socket that fails to connect leaves automatic detection unavailable
// rather than falling back to CheckDriveStatus polling, which callers can
// still invoke directly.
type Watcher struct {
	device        string
	logger        *slog.Logger
	insertHandler InsertHandler
	ejectHandler  EjectHandler
	isPaused      func() bool

	mu   sync.Mutex
	conn *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewWatcher constructs a Watcher for device. isPaused, if non-nil, is
// consulted before dispatching each matched event; a paused watcher drops
// the event instead of calling a handler. ejectHandler may be nil if the
// caller detects ejection another way (e.g. polling the drive's mount
// point during an in-progress rip).
func NewWatcher(device string, insertHandler InsertHandler, ejectHandler EjectHandler, isPaused func() bool, logger *slog.Logger) *Watcher {
	return &Watcher{
		device:        strings.TrimSpace(device),
		insertHandler: insertHandler,
		ejectHandler:  ejectHandler,
		isPaused:      isPaused,
		logger:        logger,
	}
}

// Start connects to the udev netlink socket and begins watching in a
// background goroutine. A failed connection is logged and treated as
// non-fatal, matching the daemon's tolerance for running without automatic
// disc detection.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil || w.device == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		if w.logger != nil {
			w.logger.Warn("udev netlink connect failed; automatic disc detection unavailable",
				logging.Error(err),
				logging.String("device", w.device),
			)
		}
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.loop(ctx, quit)

	if w.logger != nil {
		w.logger.Info("disc watcher started", logging.String("device", w.device))
	}
	return nil
}

// Stop tears down the netlink connection and background goroutine.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false
}

// Running reports whether the watcher is currently connected.
func (w *Watcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errCh := make(chan error)

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errCh, discMediaMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(ctx, uevent)
		case err := <-errCh:
			if w.logger != nil {
				w.logger.Warn("disc watcher netlink error", logging.Error(err))
			}
		}
	}
}

// discMediaMatcher selects any optical-drive media-state change on a block
// device (SUBSYSTEM=block, ID_CDROM=1), on add, change, or remove actions.
// Whether a given event is an insert or an eject is decided afterwards by
// inspecting ID_CDROM_MEDIA, since both directions arrive through the same
// udev rule.
func discMediaMatcher() netlink.Matcher {
	action := "change|add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"ID_CDROM":  "1",
		},
	})
	return rules
}

func (w *Watcher) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	devname := deviceNameFromEvent(uevent)
	if devname == "" || devname != w.device {
		return
	}
	if w.isPaused != nil && w.isPaused() {
		if w.logger != nil {
			w.logger.Debug("disc detection paused, ignoring netlink event", logging.String("device", devname))
		}
		return
	}

	if uevent.Env["ID_CDROM_MEDIA"] == "1" {
		if w.insertHandler == nil {
			return
		}
		if err := w.insertHandler(ctx, devname); err != nil && w.logger != nil {
			w.logger.Warn("disc insert handler failed", logging.Error(err), logging.String("device", devname))
		}
		return
	}

	if w.ejectHandler == nil {
		return
	}
	if err := w.ejectHandler(ctx, devname); err != nil && w.logger != nil {
		w.logger.Warn("disc eject handler failed", logging.Error(err), logging.String("device", devname))
	}
}

func deviceNameFromEvent(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return "/dev/" + strings.TrimPrefix(devname, "/dev/")
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	if len(parts) == 0 {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}
