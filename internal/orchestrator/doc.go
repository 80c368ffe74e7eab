// Package orchestrator drives validation session lifecycles.
//
// A session mirrors one end-to-end run of the content pipeline. The service
// moves it through a strict state machine (started, stage-validated,
// business-validated, completed, failed), appending one immutable result per
// stage execution. Stage validation runs the registered validator, records
// failures as issues, attempts a single auto-fix for mechanically
// recoverable ones, and merges the stage output into the session's context
// journal. Business validation scores the whole session and can force it to
// FAILED, which fires a critical alert. Completion scrubs the journal
// snapshots, archives a clone synchronously, and evicts the session.
//
// Every public method fails softly: panics and internal errors become
// result values with Success=false. Stage results persist asynchronously so
// a lagging archive store never sits on the validation path; only the final
// archive write at completion is synchronous.
package orchestrator
