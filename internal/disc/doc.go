// Package disc interfaces with physical optical drives and MakeMKV scanning
// utilities.
//
// It provides scanners that translate MakeMKV output into structured metadata,
// CDROM_DRIVE_STATUS tray-status helpers, and a udev watcher for insert and
// eject events; fingerprinting lives in the fingerprint subpackage. The
// package does not eject discs itself. Parsers live here to keep low-level
// device quirks isolated from higher-level workflow code.
package disc
