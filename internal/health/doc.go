// Package health rolls persisted stage results up into system-wide health.
//
// The Aggregator computes per-stage success rates and average latency over
// trailing short (1h) and long (24h) windows and classifies the system into
// one of four tiers. The Scheduler refreshes the rollup on an interval and
// caches the last snapshot so the HTTP facade can read it cheaply. Both are
// strictly read-only over the store.
package health
