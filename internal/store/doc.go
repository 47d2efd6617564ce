// Package store provides SQLite-backed durable storage for scriptd.
//
// Two tables, both keyed by script identity only:
//   - scripts: the source a script identity was loaded from, so an
//     operator can restart it later without the original file
//   - transitions: an append-only lifecycle log (loaded, stop_requested,
//     stopped, faulted, non_cooperative, evicted)
//
// Ordering always uses the seq column. Wall-clock timestamps are stored for
// operators but never sorted on.
//
// Store implements engine.Journal. Journal writes happen on script
// goroutines, so the connection pool is limited to a single connection and
// SQLite serializes writers.
package store
