package pipeline

import "time"

// Latency buckets for the session performance score, in order.
var latencyBuckets = []struct {
	limit time.Duration
	score int
}{
	{5 * time.Second, 100},
	{10 * time.Second, 80},
	{15 * time.Second, 60},
}

// DeriveStatus computes the session status tier from its stage results.
// Any failed critical result forces failed. More than two non-critical
// failures degrade to partial, one or two to degraded, otherwise success.
// The status is a pure function of the results; business validation may
// separately force failed via Session.ForcedFailed.
func DeriveStatus(results []StageResult) SessionStatus {
	failures := 0
	for _, r := range results {
		if r.Passed {
			continue
		}
		if r.Severity == SeverityCritical {
			return StatusFailed
		}
		failures++
	}
	switch {
	case failures > 2:
		return StatusPartial
	case failures > 0:
		return StatusDegraded
	default:
		return StatusSuccess
	}
}

// EffectiveStatus applies the forced-failure override on top of the derived
// status.
func (s *Session) EffectiveStatus() SessionStatus {
	if s.ForcedFailed {
		return StatusFailed
	}
	return DeriveStatus(s.Results)
}

// PerformanceScore buckets a total session duration into a 0-100 score.
func PerformanceScore(total time.Duration) int {
	for _, b := range latencyBuckets {
		if total < b.limit {
			return b.score
		}
	}
	return 40
}

// HasCriticalFailure reports whether any appended result failed critically.
func HasCriticalFailure(results []StageResult) bool {
	for _, r := range results {
		if !r.Passed && r.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// FailureCount returns the number of failed, non-critical results.
func FailureCount(results []StageResult) int {
	count := 0
	for _, r := range results {
		if !r.Passed && r.Severity != SeverityCritical {
			count++
		}
	}
	return count
}
