// Package server provides the HTTP surface of the migration engine.
//
// # Router Infrastructure
//
// Routes are registered on a chi mux. [Middleware] wraps handlers in the standard Go pattern;
// [RequestLogger] logs each request through charmbracelet/log and [RequireSecret] guards the
// join webhook with a shared secret sent in [SecretHeader].
//
// # Operator API
//
//	GET  /health
//	GET  /operations?archived=true
//	POST /operations                    start (and by default create the target group)
//	GET  /operations/{id}               status snapshot
//	GET  /operations/{id}/batches
//	POST /operations/{id}/group         create the target group of an operation in init
//	POST /operations/{id}/invite        send the next batch, or {"batchId": ...}
//	POST /operations/{id}/requeue       make rejected members pending again
//	POST /operations/{id}/complete      {"success": bool, "message": string}
//	GET  /sources/{id}/exclusions
//	POST /sources/{id}/exclusions       {"ids": [...]}
//
// # Join Events
//
// The messaging gateway posts participant joins to /events/join as
// {"groupId": ..., "participants": [...]}. Joins for groups or members the engine does not
// track are acknowledged and reported as ignored so the gateway does not retry them.
//
// # Errors
//
// Engine errors are mapped once in mapError to a status code and a stable code string, and
// written as {"error": {"code": ..., "message": ...}}.
package server
