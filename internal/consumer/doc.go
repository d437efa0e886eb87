// Package consumer implements the task consumer loop shared by the daemon
// and the controller: recover orphaned in_progress
// tasks at startup, honor the PAUSED marker, claim the next task routed to
// this owner, dispatch it to a registered driver, and write the terminal
// completion record.
package consumer
