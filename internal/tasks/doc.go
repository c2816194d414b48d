// Package tasks orchestrates group migrations with real-time progress reporting.
//
// # Lifecycle
//
// An operation moves through init → creating_group → preparing → inviting → monitoring and ends
// completed or failed when the operator closes it. A failed group creation ends in error.
//
//  1. [Engine.StartOperation] : Plans members with [PlanMembers] and persists the operation at init
//     - Rejects a second active operation for the same source group, returning the existing id
//  2. [Engine.CreateNewGroup] : Creates the target group, promotes initiator and bot, schedules the first batch
//  3. [Engine.ProcessBatch] : Sends up to MaxBatchSize pending members and records the outcome
//     - Each batch is claimed before the external call so it is sent at most once
//     - [Engine.MarkBatchInvited] schedules the next batch after BatchDelay or enters monitoring
//  4. [Engine.RecordMemberJoined] : Reconciles join events from the target group
//  5. [Engine.CompleteOperation] : Archives the operation as completed or failed
//
// # Scheduling
//
// Batches after the first run on timers from an injected [clock.Clock]. Tests use [clock.FakeClock]
// and advance virtual time. [Engine.Resume] re-arms timers after a restart and [Engine.Close] stops them.
//
// # Progress Reporting
//
// Progress updates are sent on an optional channel with select and default, so a slow reader never
// blocks the engine. The [ProgressUpdate] struct carries the phase, counters, a message and optional
// data such as a [BatchOutcome].
//
// # Persistence
//
// Every transition is a read-modify-write through [repositories.Store.Update]. External calls are
// made between writes, never while the store is locked.
package tasks
