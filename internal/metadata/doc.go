// Package metadata is the controller's disc/track store: a SQLite
// database keyed on disc fingerprint, with discs owning their tracks and
// additive migrations applied idempotently at Open so the schema can grow
// across releases without a destructive reset.
//
// The store is owned exclusively by the controller; the daemon never opens
// it — it learns disc/track identity only
// through the persistent link.
package metadata
