// Package journal records engine activity in SQLite for later inspection.
//
// The journal is an audit log, not a persistence layer: it stores every
// dispatched action and every registered store's change with the engine
// session token, but nothing ever restores history from it.
//
// # Recording
//
//   - actions: channel, seq, canonical JSON payload and dispatch tags
//   - changes: store id, canonical JSON state and its fingerprint
//
// Write failures are logged and recording continues; the journal never
// fails a dispatch.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package journal
