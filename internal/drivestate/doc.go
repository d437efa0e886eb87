// Package drivestate implements the per-drive lifecycle state machine
// of one optical drive: empty → disc_inserted → scanning →
// scanned → ripping, driven by OS disc-insert/eject events and task-driver
// callbacks, plus the proactive scan cache that lets a queued scan task
// reuse a result the daemon already computed right after insert.
//
// A Machine is a per-drive singleton shared by the disc watcher's
// insert/eject handlers, the consumer loop's scan/rip drivers, and the
// proactive-scan goroutine; an internal mutex serialises every method, so
// callers need no locking of their own.
package drivestate
