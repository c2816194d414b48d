// Package services defines the [Client] port the orchestrator uses to talk to the messaging platform
// and implements it over HTTP with [GatewayClient].
//
// # Client Port
//
// The orchestrator needs two capabilities: creating a group with initial participants and
// updating participants of an existing group in bulk (add, promote, demote, remove).
// [GroupDirectory] is an optional third capability used by the CLI to read a source group's
// members and admins before an operation starts.
//
// # Participant Status
//
// Platform status codes are translated once, in the adapter, into [ParticipantStatus]:
//   - "200" : [Added]
//   - "403" : [PrivacyBlocked]
//   - "408" : [Declined]
//   - "409" : [AlreadyMember]
//   - anything else : [Unknown], carrying the raw code
//
// Only [Added] counts as a successful invite.
//
// # Gateway Implementation
//
// [GatewayClient] calls a messaging gateway that owns the platform session.
// Requests carry a bearer token through an [oauth2.StaticTokenSource] and are paced by a
// [rate.Limiter].
//
// # Error Handling
//
// Transport failures and non-2xx responses wrap [shared.ErrAPIRequest].
package services
