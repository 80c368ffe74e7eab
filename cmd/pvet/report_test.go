package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

func reportStub(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions/sess-1/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reportFixture("success"))
	})
	mux.HandleFunc("/v1/sessions/fail-1/report", func(w http.ResponseWriter, r *http.Request) {
		fixture := reportFixture("failed")
		fixture.SessionID = "fail-1"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fixture)
	})
	mux.HandleFunc("/v1/sessions/ghost/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(v1.NewError(v1.CodeSessionNotFound, `unknown session "ghost"`))
	})
	return mux
}

func TestRunReportCmd_Table(t *testing.T) {
	withServer(t, reportStub(t))
	cmd, buf := captureCmd()

	err := runReportCmd(cmd, []string{"sess-1"})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Session: sess-1 (owner content-team)")
	assert.Contains(t, out, "Status:  success")
	assert.Contains(t, out, "Completed: 2026-08-24 10:00:19")
	assert.Contains(t, out, "STAGE")
	assert.Contains(t, out, "fetch")
	assert.Contains(t, out, "content_too_long")
	assert.Contains(t, out, "Performance: 7234 ms total, score 80")
}

func TestRunReportCmd_JSON(t *testing.T) {
	withServer(t, reportStub(t))
	cmd, buf := captureCmd()

	reportJSON = true
	defer func() { reportJSON = false }()

	err := runReportCmd(cmd, []string{"sess-1"})
	require.NoError(t, err)

	var report v1.SessionReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "sess-1", report.SessionID)
	assert.Len(t, report.Stages, 2)
}

func TestRunReportCmd_FailedSessionExitsTwo(t *testing.T) {
	withServer(t, reportStub(t))
	cmd, buf := captureCmd()

	err := runReportCmd(cmd, []string{"fail-1"})

	var xerr *exitError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, exitValidationFailed, xerr.code)

	// The report still prints before the exit status is raised.
	assert.Contains(t, buf.String(), "Status:  failed")
}

func TestRunReportCmd_NotFound(t *testing.T) {
	withServer(t, reportStub(t))
	cmd, _ := captureCmd()

	err := runReportCmd(cmd, []string{"ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown session")

	var xerr *exitError
	assert.False(t, errors.As(err, &xerr), "transport errors exit 1, not 2")
}

func TestPrintScores_Sorted(t *testing.T) {
	var buf bytes.Buffer

	printScores(&buf, map[string]float64{
		"semantic":  0.82,
		"composite": 0.87,
		"keyword":   0.90,
	})

	out := buf.String()
	require.Less(t, strings.Index(out, "composite"), strings.Index(out, "keyword"))
	require.Less(t, strings.Index(out, "keyword"), strings.Index(out, "semantic"))
}
