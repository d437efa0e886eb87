// Package taskqueue implements the durable, file-backed, dependency-ordered
// task directory: an append-only ordering
// file (tasks.json) plus queued/in_progress/complete/failed subdirectories,
// with rename as the sole mutual-exclusion primitive for claims.
//
// The directory is safe for one producer (enqueue/reconcile) and many
// concurrent consumers (claim/complete) across two independently-crashing
// processes sharing the same filesystem mount.
package taskqueue
