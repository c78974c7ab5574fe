// Package store provides the SQLite-backed reference document store.
//
// The store keeps:
//   - documents: current state of every document (attributes + mixins)
//   - transactions: append-only log of every committed mutation
//
// # Atomic groups
//
// Apply commits a transaction tree in one SQLite transaction. A TxApplyIf
// group commits only if its Match queries find documents and its NotMatch
// queries find none, evaluated against the writes made so far in the same
// tree. A failed precondition anywhere rolls back the whole tree and is
// reported as TxResult{Success: false}; any other failure rolls back the
// tree and is returned as an error.
//
// # Deterministic reads
//
//   - every query orders by id COLLATE BINARY
//   - query values are always bound parameters, never interpolated
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single connection, so writes are serialized
package store
