// Package repositories persists the orchestrator state document.
//
// All operations, the archive of completed operations and the invitation batches live in one
// [State] value serialized as JSON under [StateKey]. The [Store] serializes every read-modify-write:
//
//   - [Store.View] loads the document for reading
//   - [Store.Update] loads it, applies a mutation and saves it in one [KV.Update]
//
// [SQLiteKV] runs that update inside a BEGIN IMMEDIATE transaction, so the CLI and a running
// server sharing one database file never overwrite each other's writes.
//
// A mutation that returns an error leaves the stored document untouched. Returning [ErrSkipSave]
// ends the update without writing. Every save validates operation invariants first, so a
// document that breaks them is never persisted.
//
// Key Implementations:
//   - [SQLiteKV] : kv_store table created by the embedded migrations in package shared
//   - [MemoryKV] : In-memory map for tests
package repositories
