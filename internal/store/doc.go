// Package store provides the SQLite event journal.
//
// The journal is an append-only audit sink: every handled event is
// written once, keyed by its event ID. Nothing in it is loaded back into
// an engine, so engine state does not survive a restart.
//
// # Ordering
//
// Queries order by timestamp, then seq, then id COLLATE BINARY. seq is
// per-engine and restarts at 1 with each process, so it only orders
// events sharing a timestamp.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
