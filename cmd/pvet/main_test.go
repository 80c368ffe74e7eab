package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

// withServer points the CLI at a stub daemon for the duration of the test.
func withServer(t *testing.T, handler http.Handler) {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	prev := serverURL
	serverURL = ts.URL
	t.Cleanup(func() { serverURL = prev })
}

// captureCmd builds a throwaway command whose output lands in a buffer.
func captureCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	return cmd, &buf
}

func healthFixture() v1.HealthResponse {
	return v1.HealthResponse{
		Tier:           "healthy",
		ActiveSessions: 3,
		GeneratedAt:    time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC),
		Short: v1.WindowReport{
			WindowSeconds: 3600,
			Stages: []v1.StageHealth{
				{Stage: "fetch", Total: 50, Passed: 46, SuccessRate: 0.92, AvgDurationMS: 820, AutoFixed: 2},
				{Stage: "generate", Total: 48, Passed: 48, SuccessRate: 1.0, AvgDurationMS: 1430},
			},
		},
		Long: v1.WindowReport{WindowSeconds: 86400},
	}
}

func reportFixture(status string) v1.SessionReport {
	completed := time.Date(2026, 8, 24, 10, 0, 19, 0, time.UTC)
	return v1.SessionReport{
		ReportID:    "9e8c6c1e-0000-0000-0000-000000000001",
		GeneratedAt: time.Date(2026, 8, 24, 10, 0, 20, 0, time.UTC),
		SessionID:   "sess-1",
		Owner:       "content-team",
		Active:      false,
		State:       "completed",
		Status:      status,
		StartedAt:   time.Date(2026, 8, 24, 10, 0, 12, 0, time.UTC),
		CompletedAt: &completed,
		Stages: []v1.StageRow{
			{Stage: "fetch", Attempts: 1, Passed: true, Severity: "info", DurationMS: 812},
			{Stage: "generate", Attempts: 2, Passed: true, Severity: "warning", IssueType: "content_too_long", DurationMS: 1530, AutoFixed: true},
		},
		Quality: &v1.QualityMetrics{
			OverallValid: true,
			Scores: map[string]float64{
				"composite":   0.87,
				"keyword":     0.90,
				"domain_match": 1.0,
			},
		},
		Performance: &v1.PerformanceReport{TotalDurationMS: 7234, Score: 80},
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}

	for _, want := range []string{"health", "report", "replay", "audit", "monitor"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestRootCmd_ServerFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("server")
	require.NotNil(t, flag)
	assert.Equal(t, "http://localhost:9190", flag.DefValue)
}

func TestValidationFailed_ExitCode(t *testing.T) {
	err := validationFailed("session %s failed", "sess-1")

	var xerr *exitError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, exitValidationFailed, xerr.code)
	assert.Equal(t, "session sess-1 failed", err.Error())
}

func TestYesNo(t *testing.T) {
	assert.Equal(t, "yes", yesNo(true))
	assert.Equal(t, "no", yesNo(false))
}
