// Package producer implements the task producer: it
// turns a user's "process selected tracks" action into rip/transcode task
// pairs on the shared task directory, consulting the resume reconciler so a
// stage already complete on disk is never re-enqueued, and periodically
// reconciling orphaned queue entries left by a crash between a task file's
// write and its append to the ordering index.
package producer
