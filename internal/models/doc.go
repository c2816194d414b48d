// Package models defines the persisted entities of the group migration orchestrator.
//
// The package contains three groups of types:
//
// 1. Persisted records, stored inside the orchestrator state document
//   - [Operation] : One migration attempt from a source group to a target group
//   - [Batch] : A bounded, single-use slice of pending invitees submitted in one external call
//   - [LogEntry] : A timestamped line of an operation's append-only log
//
// 2. Enumerations
//   - [Status] : Operation lifecycle state (init → creating_group → preparing → inviting → monitoring → completed | failed, plus error)
//   - [BatchStatus] : pending or sent
//
// 3. Read models and helpers
//   - [OperationStatus] : Snapshot returned to operators, with the most recent log lines only
//   - [ParticipantSet] : Set of normalized participant ids, serialized as a sorted array
//   - [NormalizeParticipant] : Canonical participant id form used before every set test
//
// Records validate their own invariants through Validate, which the store calls before every write.
package models
