package monitor

import "fmt"

// FormatRate formats a request rate as "X.X req/s"
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.1f req/s", rate)
}

// FormatLatency formats latency in seconds as "X.Xms" or "X.Xs"
func FormatLatency(latencySeconds float64) string {
	if latencySeconds < 1.0 {
		ms := latencySeconds * 1000
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.1fs", latencySeconds)
}

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatCount formats a count, compacting large values as "X.Xk"
func FormatCount(n int) string {
	if n >= 10000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
