package drivestate

import (
	"errors"
	"testing"

	"amphigory/internal/disc"
)

func TestMachine_InitialStateIsEmpty(t *testing.T) {
	m := New("/dev/sr0")
	if m.State() != StateEmpty {
		t.Fatalf("expected empty, got %s", m.State())
	}
}

func TestMachine_InsertClearsPriorState(t *testing.T) {
	m := New("/dev/sr0")
	m.Insert("A", "dvd", "/mnt/sr0")
	if err := m.SetFingerprint("abc"); err != nil {
		t.Fatalf("set fingerprint: %v", err)
	}
	if err := m.StartScan("task-1"); err != nil {
		t.Fatalf("start scan: %v", err)
	}
	if err := m.CompleteScan(&disc.ScanResult{DiscName: "A"}); err != nil {
		t.Fatalf("complete scan: %v", err)
	}

	m.Insert("B", "bluray", "/mnt/sr0")
	if m.State() != StateDiscInserted {
		t.Fatalf("expected disc_inserted, got %s", m.State())
	}
	if m.Fingerprint() != "" {
		t.Fatalf("expected fingerprint cleared, got %q", m.Fingerprint())
	}
	if m.CachedScan() != nil {
		t.Fatalf("expected scan cache cleared")
	}
	if m.Volume() != "B" || m.Medium() != "bluray" {
		t.Fatalf("unexpected volume/medium after reinsert: %s/%s", m.Volume(), m.Medium())
	}
}

func TestMachine_EjectResetsFromAnyState(t *testing.T) {
	m := New("/dev/sr0")
	m.Insert("A", "dvd", "/mnt/sr0")
	_ = m.StartScan("task-1")
	_ = m.CompleteScan(&disc.ScanResult{})
	_ = m.StartRip("task-2")

	m.Eject()
	if m.State() != StateEmpty {
		t.Fatalf("expected empty after eject, got %s", m.State())
	}
	if m.RipTaskID() != "" || m.CachedScan() != nil {
		t.Fatalf("expected rip/scan state cleared on eject")
	}
}

func TestMachine_StartScanRejectsFromEmpty(t *testing.T) {
	m := New("/dev/sr0")
	err := m.StartScan("task-1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMachine_CompleteScanOnlyFromScanning(t *testing.T) {
	m := New("/dev/sr0")
	m.Insert("A", "dvd", "/mnt/sr0")
	if err := m.CompleteScan(&disc.ScanResult{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition calling complete_scan before start_scan, got %v", err)
	}
}

func TestMachine_FailScanReturnsToDiscInserted(t *testing.T) {
	m := New("/dev/sr0")
	m.Insert("A", "dvd", "/mnt/sr0")
	_ = m.StartScan("task-1")

	scanErr := errors.New("read error")
	if err := m.FailScan(scanErr); err != nil {
		t.Fatalf("fail scan: %v", err)
	}
	if m.State() != StateDiscInserted {
		t.Fatalf("expected disc_inserted, got %s", m.State())
	}
	if !errors.Is(m.ScanError(), scanErr) {
		t.Fatalf("expected scan error recorded")
	}
}

func TestMachine_RipRoundTrip(t *testing.T) {
	m := New("/dev/sr0")
	m.Insert("A", "dvd", "/mnt/sr0")
	_ = m.StartScan("task-1")
	_ = m.CompleteScan(&disc.ScanResult{})

	if err := m.StartRip("task-2"); err != nil {
		t.Fatalf("start rip: %v", err)
	}
	if m.State() != StateRipping {
		t.Fatalf("expected ripping, got %s", m.State())
	}
	m.UpdateRipProgress(42.5)
	if m.RipPercent() != 42.5 {
		t.Fatalf("expected percent recorded, got %v", m.RipPercent())
	}

	if err := m.FinishRip(); err != nil {
		t.Fatalf("finish rip: %v", err)
	}
	if m.State() != StateScanned {
		t.Fatalf("expected scanned after rip, got %s", m.State())
	}
}

func TestMachine_ScanCacheValidOnlyWithMatchingFingerprint(t *testing.T) {
	m := New("/dev/sr0")
	m.Insert("A", "dvd", "/mnt/sr0")
	_ = m.SetFingerprint("fp-1")
	_ = m.StartScan("task-1")
	_ = m.CompleteScan(&disc.ScanResult{DiscName: "cached"})

	if !m.ScanCacheValid("fp-1") {
		t.Fatalf("expected cache valid for matching fingerprint")
	}
	if m.ScanCacheValid("fp-2") {
		t.Fatalf("expected cache invalid for mismatched fingerprint")
	}
	if got := m.ClaimScanCache("fp-1"); got == nil || got.DiscName != "cached" {
		t.Fatalf("expected cached result returned, got %+v", got)
	}
	if m.ClaimScanCache("fp-2") != nil {
		t.Fatalf("expected nil for mismatched fingerprint")
	}
}

func TestMachine_CacheScanPopulatesProactiveCache(t *testing.T) {
	m := New("/dev/sr0")
	m.Insert("A", "dvd", "/mnt/sr0")
	_ = m.SetFingerprint("fp-1")

	if !m.CacheScan("fp-1", &disc.ScanResult{DiscName: "proactive"}) {
		t.Fatalf("expected cache store for matching fingerprint")
	}
	if got := m.ClaimScanCache("fp-1"); got == nil || got.DiscName != "proactive" {
		t.Fatalf("expected proactively cached result, got %+v", got)
	}
	if m.ClaimScanCache("fp-1") != nil {
		t.Fatalf("expected claim to consume the cache")
	}
}

func TestMachine_CacheScanDroppedOnFingerprintMismatchOrEmpty(t *testing.T) {
	m := New("/dev/sr0")
	if m.CacheScan("fp-1", &disc.ScanResult{DiscName: "stale"}) {
		t.Fatalf("expected cache store rejected with no disc mounted")
	}

	m.Insert("A", "dvd", "/mnt/sr0")
	_ = m.SetFingerprint("fp-2")
	if m.CacheScan("fp-1", &disc.ScanResult{DiscName: "stale"}) {
		t.Fatalf("expected cache store rejected for mismatched fingerprint")
	}
	if m.CachedScan() != nil {
		t.Fatalf("expected no cached result after rejected stores")
	}
}

func TestMachine_SetFingerprintRejectedWhenEmpty(t *testing.T) {
	m := New("/dev/sr0")
	if err := m.SetFingerprint("fp-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
