package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/config"
	"github.com/fyrsmithlabs/pipevet/internal/embeddings"
	"github.com/fyrsmithlabs/pipevet/internal/gitinfo"
	"github.com/fyrsmithlabs/pipevet/internal/httpapi"
	"github.com/fyrsmithlabs/pipevet/internal/journal"
	"github.com/fyrsmithlabs/pipevet/internal/orchestrator"
	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
	"github.com/fyrsmithlabs/pipevet/internal/quality"
	"github.com/fyrsmithlabs/pipevet/internal/secrets"
	"github.com/fyrsmithlabs/pipevet/internal/stages"
	"github.com/fyrsmithlabs/pipevet/internal/store"
	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

var (
	replayJSON        bool
	replayGitAnnotate bool
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Output the report as JSON")
	replayCmd.Flags().BoolVar(&replayGitAnnotate, "git-annotate", false, "Tag the session owner with the current git revision")
}

// Transcript is a recorded pipeline session: who ran it, the initial
// context, and every stage execution in order.
type Transcript struct {
	SessionID      string                 `json:"session_id"`
	Owner          string                 `json:"owner"`
	InitialContext map[string]interface{} `json:"initial_context"`
	Stages         []TranscriptStage      `json:"stages"`
}

// TranscriptStage is one recorded stage execution.
type TranscriptStage struct {
	Stage      string                 `json:"stage"`
	Input      map[string]interface{} `json:"input"`
	Output     map[string]interface{} `json:"output"`
	DurationMS int64                  `json:"duration_ms"`
}

var replayCmd = &cobra.Command{
	Use:   "replay <transcript.json>",
	Short: "Replay a recorded session through an offline engine",
	Long: `Replay a recorded session transcript through an in-process validation
engine, without a running daemon. The transcript is validated stage by
stage, business-quality checks run on the accumulated context, and the
final report is printed.

A transcript is a JSON file:

  {
    "session_id": "sess-001",
    "owner": "content-team",
    "initial_context": {"user_question": "..."},
    "stages": [
      {"stage": "fetch", "input": {}, "output": {}, "duration_ms": 812}
    ]
  }

The command exits with status 2 when the replayed session fails
validation.

Examples:
  # Replay a transcript
  pvet replay transcript.json

  # Tag the report owner with the current git revision
  pvet replay transcript.json --git-annotate

  # Full report as JSON
  pvet replay transcript.json --json`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	transcript, err := loadTranscript(args[0])
	if err != nil {
		return err
	}

	if replayGitAnnotate {
		if annotation := gitinfo.Describe(".").Annotation(); annotation != "" {
			transcript.Owner = fmt.Sprintf("%s [%s]", transcript.Owner, annotation)
		}
	}

	report, status, err := replayTranscript(context.Background(), transcript)
	if err != nil {
		return err
	}

	if replayJSON {
		if err := outputJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), *report)
	}

	if status == pipeline.StatusFailed {
		return validationFailed("session %s failed validation", report.SessionID)
	}
	return nil
}

func loadTranscript(path string) (*Transcript, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript %s: %w", path, err)
	}

	var transcript Transcript
	if err := json.Unmarshal(content, &transcript); err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", path, err)
	}

	if len(transcript.Stages) == 0 {
		return nil, fmt.Errorf("transcript %s has no stages", path)
	}
	if transcript.SessionID == "" {
		transcript.SessionID = "replay-" + uuid.NewString()[:8]
	}
	if transcript.Owner == "" {
		transcript.Owner = "replay"
	}
	return &transcript, nil
}

// replayTranscript runs the transcript through a fresh engine backed by
// the in-memory store. Stage failures and out-of-order warnings land in
// the report rather than aborting the replay.
func replayTranscript(ctx context.Context, transcript *Transcript) (*v1.SessionReport, pipeline.SessionStatus, error) {
	logger := zap.NewNop()
	cfg := config.Default()

	scrubber, err := secrets.New(nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build scrubber: %w", err)
	}

	tracker := journal.NewTracker(journal.PolicyFromConfig(cfg.Pipeline.CriticalFields), logger)
	memStore := store.NewMemoryStore(logger)
	validator := quality.NewValidator(cfg.Quality, embeddings.NewStaticProvider(0), logger)

	engine, err := orchestrator.NewService(
		stages.NewDefaultRegistry(logger),
		tracker,
		validator,
		memStore,
		nil,
		nil,
		scrubber,
		logger,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build engine: %w", err)
	}
	defer memStore.Close()
	defer engine.Close()

	if res := engine.StartSession(ctx, transcript.SessionID, transcript.Owner, transcript.InitialContext); !res.Success {
		return nil, "", fmt.Errorf("failed to start session: %s", res.Error)
	}

	for _, stage := range transcript.Stages {
		engine.ValidateStage(ctx, transcript.SessionID, pipeline.Stage(stage.Stage), stage.Input, stage.Output, stage.DurationMS)
	}

	engine.ValidateBusinessLogic(ctx, transcript.SessionID)

	completion := engine.CompleteSession(ctx, transcript.SessionID)
	if !completion.Success {
		return nil, "", fmt.Errorf("failed to complete session: %s", completion.Error)
	}

	archived := engine.GetSessionReport(ctx, transcript.SessionID)
	if !archived.Success {
		return nil, "", fmt.Errorf("failed to build report: %s", archived.Error)
	}

	out := httpapi.ToSessionReport(*archived)
	return &out, completion.Status, nil
}
