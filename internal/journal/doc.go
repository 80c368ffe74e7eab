// Package journal owns the per-session context journals and catches silent
// field loss between pipeline stages.
//
// A journal is created when a session starts and retired when it completes.
// Every stage boundary appends an immutable snapshot of the accumulated
// context plus a transformation record of what the stage added, removed, or
// modified. Critical fields follow a cumulative per-stage policy: later
// stages require everything earlier stages required, plus their own. A
// required field that is reachable neither as a top-level key of the current
// context nor anywhere inside the stage output produces a LossEvent and
// sets the journal's sticky loss flag.
//
// All public methods fail softly, returning result values with Success=false
// and an error string instead of propagating errors or panics. Context
// tracking must not be able to abort the pipeline it observes.
package journal
