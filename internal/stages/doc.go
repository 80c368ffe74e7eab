// Package stages provides per-stage output validation for the monitored
// pipeline.
//
// Each canonical stage has one Validator encoding its sanity checks. A
// Validator may additionally implement AutoFixer for failures that are
// mechanically recoverable; the capability is detected once at registration.
// The orchestrator depends only on the Registry, so new stages can be added
// without touching session lifecycle code.
package stages
