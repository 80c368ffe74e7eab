// Package alerting delivers critical-session notifications.
//
// Alerts are strictly fire-and-forget: the orchestrator calls Notify, which
// dispatches on a background goroutine with a bounded timeout, and every
// failure mode (broker down, API error, sink panic) ends in a log line.
// A critical session must never be made worse by its own alert.
package alerting
