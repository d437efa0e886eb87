package drivestate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"amphigory/internal/disc"
)

// State is one of the drive lifecycle states.
type State string

const (
	StateEmpty        State = "empty"
	StateDiscInserted State = "disc_inserted"
	StateScanning     State = "scanning"
	StateScanned      State = "scanned"
	StateRipping      State = "ripping"
)

// ErrInvalidTransition is returned when a method is called from a state
// that does not permit it.
var ErrInvalidTransition = errors.New("drivestate: invalid transition")

// Machine tracks one physical drive's lifecycle. The zero value is ready to
// use and starts in StateEmpty.
type Machine struct {
	Device string

	// mu serialises access across the three goroutines that touch a
	// drive: the disc watcher's insert/eject handlers, the consumer
	// loop's scan/rip drivers, and the proactive-scan goroutine that
	// populates the cache in the background.
	mu sync.Mutex

	state State

	volume     string
	medium     string
	insertedAt time.Time

	scanTaskID string
	scanResult *disc.ScanResult
	scanError  error

	ripTaskID  string
	ripPercent float64

	fingerprint string

	// trackedVolume is the mount path recorded at insert time. Eject
	// detection does not compare against it: disc.Watcher matches udev
	// events by device name.
	trackedVolume string
}

// New constructs a Machine for device, starting in StateEmpty.
func New(device string) *Machine {
	return &Machine{Device: device, state: StateEmpty}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fingerprint returns the cached fingerprint, if one has been set since the
// last insert.
func (m *Machine) Fingerprint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fingerprint
}

// Volume returns the mounted volume name recorded at insert.
func (m *Machine) Volume() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Medium returns the disc medium kind recorded at insert.
func (m *Machine) Medium() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.medium
}

// ScanTaskID returns the task id passed to the most recent StartScan call.
func (m *Machine) ScanTaskID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanTaskID
}

// RipTaskID returns the task id of the currently-ripping task, if any.
func (m *Machine) RipTaskID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ripTaskID
}

// CachedScan returns the proactive scan cached on insert, or nil if none is
// cached (cleared on eject or before every fresh scan).
func (m *Machine) CachedScan() *disc.ScanResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanResult
}

// ScanError returns the error recorded by the most recent FailScan call.
func (m *Machine) ScanError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanError
}

// Insert transitions any state → disc_inserted, clearing all prior
// scan/rip state and recording the newly-mounted volume.
// trackedVolume is the mount path the daemon actually mounted; it is
// stored for TrackedVolume and not used by eject detection.
func (m *Machine) Insert(volume, medium, trackedVolume string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset(StateDiscInserted)
	m.volume = volume
	m.medium = medium
	m.insertedAt = time.Now().UTC()
	m.trackedVolume = trackedVolume
}

// TrackedVolume returns the mount path recorded at the last Insert. The
// daemon's eject handler does not consult it; an eject event is matched to
// this drive by device name only.
func (m *Machine) TrackedVolume() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackedVolume
}

// Eject resets the machine fully to StateEmpty, regardless of
// current state: an eject can arrive at any point in the lifecycle (mid
// scan, mid rip) and always wins.
func (m *Machine) Eject() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset(StateEmpty)
}

// reset clears every per-disc field while holding mu, leaving Device and
// the mutex itself in place.
func (m *Machine) reset(state State) {
	m.state = state
	m.volume = ""
	m.medium = ""
	m.insertedAt = time.Time{}
	m.scanTaskID = ""
	m.scanResult = nil
	m.scanError = nil
	m.ripTaskID = ""
	m.ripPercent = 0
	m.fingerprint = ""
	m.trackedVolume = ""
}

// StartScan transitions disc_inserted|scanned → scanning and records the
// owning task id. Any previously cached scan result is
// left untouched until CompleteScan overwrites it; ClaimScanCache is the
// caller's hook for deciding whether a cached result can be reused instead
// of launching a fresh scan.
func (m *Machine) StartScan(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateDiscInserted && m.state != StateScanned {
		return fmt.Errorf("%w: start_scan from %s", ErrInvalidTransition, m.state)
	}
	m.state = StateScanning
	m.scanTaskID = taskID
	m.scanError = nil
	return nil
}

// CompleteScan transitions scanning → scanned and caches result.
func (m *Machine) CompleteScan(result *disc.ScanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateScanning {
		return fmt.Errorf("%w: complete_scan from %s", ErrInvalidTransition, m.state)
	}
	m.state = StateScanned
	m.scanResult = result
	m.scanError = nil
	return nil
}

// FailScan transitions scanning → disc_inserted and records the error.
func (m *Machine) FailScan(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateScanning {
		return fmt.Errorf("%w: fail_scan from %s", ErrInvalidTransition, m.state)
	}
	m.state = StateDiscInserted
	m.scanError = err
	m.scanResult = nil
	return nil
}

// StartRip transitions scanned → ripping and records the owning task id
// and live percent the heartbeat reports.
func (m *Machine) StartRip(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateScanned {
		return fmt.Errorf("%w: start_rip from %s", ErrInvalidTransition, m.state)
	}
	m.state = StateRipping
	m.ripTaskID = taskID
	m.ripPercent = 0
	return nil
}

// UpdateRipProgress records the latest percent for the active rip, for the
// heartbeat snapshot.
func (m *Machine) UpdateRipProgress(percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ripPercent = percent
}

// RipPercent returns the last percent recorded by UpdateRipProgress.
func (m *Machine) RipPercent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ripPercent
}

// FinishRip transitions ripping → scanned regardless of whether the rip
// succeeded or failed.
func (m *Machine) FinishRip() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRipping {
		return fmt.Errorf("%w: finish_rip from %s", ErrInvalidTransition, m.state)
	}
	m.state = StateScanned
	m.ripTaskID = ""
	m.ripPercent = 0
	return nil
}

// SetFingerprint records fp as the fingerprint of the currently-mounted
// disc. Valid any time after insert; rejected once
// the drive has returned to empty, since there is then no disc for the
// fingerprint to describe.
func (m *Machine) SetFingerprint(fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateEmpty {
		return fmt.Errorf("%w: set_fingerprint with no disc mounted", ErrInvalidTransition)
	}
	m.fingerprint = fp
	return nil
}

// CacheScan stores a proactively computed scan result for the mounted
// disc without advancing the state machine. The result is dropped when fp
// no longer matches the mounted disc's fingerprint (the disc changed
// while the background scan ran) or the drive has returned to empty.
// Reports whether the result was cached.
func (m *Machine) CacheScan(fp string, result *disc.ScanResult) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result == nil || fp == "" {
		return false
	}
	if m.state == StateEmpty || m.fingerprint != fp {
		return false
	}
	m.scanResult = result
	return true
}

// ScanCacheValid reports whether a cached scan result exists and the disc
// identity it was computed against still matches.
// deviceFingerprint is the fingerprint the caller has just (re)confirmed
// for the mounted disc.
func (m *Machine) ScanCacheValid(deviceFingerprint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanCacheValidLocked(deviceFingerprint)
}

func (m *Machine) scanCacheValidLocked(deviceFingerprint string) bool {
	return m.scanResult != nil && m.fingerprint != "" && m.fingerprint == deviceFingerprint
}

// ClaimScanCache returns the cached scan result if valid for
// deviceFingerprint and clears the entry. A caller that completes the scan
// with the claimed result (CompleteScan) stores it again, so later scans of
// the same disc are answered from it too. Returns nil if no valid cache
// exists.
func (m *Machine) ClaimScanCache(deviceFingerprint string) *disc.ScanResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanCacheValidLocked(deviceFingerprint) {
		return nil
	}
	result := m.scanResult
	m.scanResult = nil
	return result
}
