// Package clock abstracts time for the orchestrator so batch pacing can run on virtual time in tests.
//
// [Real] delegates to the time package. [Fake] stands still until [FakeClock.Advance] is called and
// fires due callbacks in deadline order on the calling goroutine.
package clock
