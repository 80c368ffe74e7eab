// Package pipeline defines the shared data model for the validation engine:
// sessions, stages, stage results, issues, context snapshots, and the pure
// status derivation rules. All services build on these types; the package
// has no service dependencies of its own.
package pipeline
