// Package store is the canonical store (§4.1): an embedded SQLite
// database holding runs, canonical events, signatures, classifications,
// per-run signature statistics, and the PII audit log.
//
// # UPSERT contract
//
// All mutations arrive as Intent records through a single ApplyBatch call
// driven by the writer queue (internal/writer), one batch per
// transaction. Within a batch, intents are pre-deduplicated by conflict
// key, keeping the last occurrence. An UPSERT of a classification row
// whose existing is_human_verified is true succeeds with no mutation — a
// StoreConflictWarning is logged, not returned as an error. Otherwise the
// update SET clause is restricted to the table's updatable allow-list,
// excluding primary-key, indexed, and immutable columns (status,
// started_at on runs; is_human_verified, usage_type on classifications).
// "On conflict, do update" semantics only — never insert-or-replace,
// which would destroy lineage by deleting before inserting.
//
// # Database configuration
//
//   - WAL mode for concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000ms
//   - foreign_keys=ON
//   - SetMaxOpenConns(1): SQLite has exactly one writer; this store has
//     exactly one writer goroutine (the writer queue consumer), so the
//     pool is sized to match rather than to paper over contention.
package store
