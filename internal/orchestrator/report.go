package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
	"github.com/fyrsmithlabs/pipevet/internal/store"
)

func (s *service) GetSessionReport(ctx context.Context, id string) (res *SessionReport) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.session_report",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()
	defer softFail(s.logger, "session_report", func(msg string) { res = &SessionReport{Error: msg} })

	if id == "" {
		return &SessionReport{Error: "session id cannot be empty"}
	}

	if as, ok := s.lookup(id); ok {
		as.mu.Lock()
		snapshot := as.session.Clone()
		as.mu.Unlock()

		report := buildReport(snapshot, true)
		report.Flow = s.tracker.FlowReport(ctx, id)
		return report
	}

	archived, err := s.store.LoadSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &SessionReport{Error: fmt.Sprintf("unknown session %s", id)}
		}
		s.logger.Warn("archived session load failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
		return &SessionReport{Error: fmt.Sprintf("loading session %s: %s", id, err)}
	}
	return buildReport(archived, false)
}

// buildReport renders a point-in-time session copy. The caller owns sess;
// nothing here retains it.
func buildReport(sess *pipeline.Session, active bool) *SessionReport {
	return &SessionReport{
		Success:     true,
		ReportID:    uuid.NewString(),
		GeneratedAt: time.Now(),
		SessionID:   sess.ID,
		Owner:       sess.Owner,
		Active:      active,
		State:       sess.State,
		Status:      sess.EffectiveStatus(),
		StartedAt:   sess.StartedAt,
		CompletedAt: sess.CompletedAt,
		Stages:      stageTable(sess.Results),
		Issues:      sess.Issues,
		AutoFixes:   sess.AutoFixes,
		Quality:     sess.Quality,
		Performance: sess.Performance,
		Snapshots:   sess.Snapshots,
	}
}

// stageTable folds the append-only result history into one row per stage.
// The latest attempt decides pass state and severity; durations accumulate
// across attempts; fix and ordering flags stick once seen.
func stageTable(results []pipeline.StageResult) []StageRow {
	byStage := make(map[pipeline.Stage]*StageRow)
	for _, r := range results {
		row, ok := byStage[r.StageID]
		if !ok {
			row = &StageRow{Stage: r.StageID}
			byStage[r.StageID] = row
		}
		row.Attempts++
		row.Passed = r.Passed
		row.Severity = r.Severity
		row.IssueType = r.IssueType
		row.DurationMS += r.DurationMS
		row.AutoFixed = row.AutoFixed || r.AutoFixed
		row.OutOfOrder = row.OutOfOrder || r.OutOfOrder
		row.LastValidatedAt = r.ValidatedAt
	}

	rows := make([]StageRow, 0, len(byStage))
	for _, row := range byStage {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		pi, pj := rows[i].Stage.Position(), rows[j].Stage.Position()
		if pi < 0 && pj < 0 {
			return rows[i].Stage < rows[j].Stage
		}
		if pi < 0 {
			return false
		}
		if pj < 0 {
			return true
		}
		return pi < pj
	})
	return rows
}
