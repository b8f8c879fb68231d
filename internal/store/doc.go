// Package store provides the SQLite resolution log.
//
// Every recorded resolution keeps the canonical query, the hash of the model
// it was resolved against and the canonical snapshot of the result. Replay
// re-resolves recorded queries and reports snapshots that changed, which
// catches non-deterministic resolution and engine regressions.
//
// # Invariants
//
//   - One record per (query_id, model_hash); re-recording is a no-op.
//   - All reads ORDER BY seq ASC, id ASC COLLATE BINARY.
//   - Query and snapshot are stored as RFC 8785 canonical JSON, so equal
//     snapshots compare byte for byte.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
