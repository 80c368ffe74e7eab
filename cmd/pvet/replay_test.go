package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

func writeTranscript(t *testing.T, transcript Transcript) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "transcript.json")
	content, err := json.Marshal(transcript)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// passingTranscript records a session where every stage satisfies its
// validator.
func passingTranscript() Transcript {
	return Transcript{
		SessionID: "sess-replay-1",
		Owner:     "content-team",
		InitialContext: map[string]interface{}{
			"user_question": "What changed in the quarterly enrollment report?",
		},
		Stages: []TranscriptStage{
			{Stage: "fetch", Output: map[string]interface{}{
				"source_data":  "enrollment rows for Q3 with 1240 records",
				"retrieved_at": "2026-08-24T10:00:01Z",
			}, DurationMS: 812},
			{Stage: "knowledge", Output: map[string]interface{}{
				"knowledge_context": []interface{}{
					map[string]interface{}{"text": "Q3 enrollment grew 4 percent over Q2."},
				},
			}, DurationMS: 420},
			{Stage: "generate", Output: map[string]interface{}{
				"generated_content": strings.Repeat("Q3 enrollment grew four percent over the prior quarter. ", 5),
			}, DurationMS: 1530},
			{Stage: "media", Output: map[string]interface{}{
				"asset_url":  "https://cdn.example.com/q3-enrollment.png",
				"asset_size": 204800,
			}, DurationMS: 610},
			{Stage: "publish", Output: map[string]interface{}{
				"ack_id": "pub-20260824-01",
			}, DurationMS: 240},
		},
	}
}

func TestLoadTranscript_Defaults(t *testing.T) {
	path := writeTranscript(t, Transcript{
		Stages: []TranscriptStage{{Stage: "fetch"}},
	})

	transcript, err := loadTranscript(path)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(transcript.SessionID, "replay-"), "generated ID %q", transcript.SessionID)
	assert.Equal(t, "replay", transcript.Owner)
}

func TestLoadTranscript_MissingFile(t *testing.T) {
	_, err := loadTranscript(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read transcript")
}

func TestLoadTranscript_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := loadTranscript(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse transcript")
}

func TestLoadTranscript_NoStages(t *testing.T) {
	path := writeTranscript(t, Transcript{SessionID: "sess-empty"})

	_, err := loadTranscript(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no stages")
}

func TestRunReplay_Success(t *testing.T) {
	path := writeTranscript(t, passingTranscript())
	cmd, buf := captureCmd()

	err := runReplay(cmd, []string{path})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Session: sess-replay-1 (owner content-team)")
	assert.Contains(t, out, "Status:  success")
	assert.Contains(t, out, "publish")
	assert.Contains(t, out, "Performance:")
}

func TestRunReplay_FailedStageExitsTwo(t *testing.T) {
	path := writeTranscript(t, Transcript{
		SessionID: "sess-broken",
		Owner:     "content-team",
		InitialContext: map[string]interface{}{
			"user_question": "What changed?",
		},
		Stages: []TranscriptStage{
			{Stage: "fetch", Output: map[string]interface{}{}, DurationMS: 300},
		},
	})
	cmd, buf := captureCmd()

	err := runReplay(cmd, []string{path})

	var xerr *exitError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, exitValidationFailed, xerr.code)
	assert.Contains(t, buf.String(), "Status:  failed")
}

func TestRunReplay_JSON(t *testing.T) {
	path := writeTranscript(t, passingTranscript())
	cmd, buf := captureCmd()

	replayJSON = true
	defer func() { replayJSON = false }()

	err := runReplay(cmd, []string{path})
	require.NoError(t, err)

	var report v1.SessionReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "sess-replay-1", report.SessionID)
	assert.Equal(t, "success", report.Status)
	assert.Len(t, report.Stages, 5)
	assert.False(t, report.Active)
}

func TestRunReplay_GitAnnotate(t *testing.T) {
	repoDir := t.TempDir()
	repo, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "pipeline.yaml"), []byte("stages: 5\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("pipeline.yaml")
	require.NoError(t, err)
	_, err = wt.Commit("add pipeline config", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	path := writeTranscript(t, passingTranscript())
	t.Chdir(repoDir)

	replayGitAnnotate = true
	replayJSON = true
	defer func() {
		replayGitAnnotate = false
		replayJSON = false
	}()

	cmd, buf := captureCmd()
	require.NoError(t, runReplay(cmd, []string{path}))

	var report v1.SessionReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Contains(t, report.Owner, "content-team [master@")
}
