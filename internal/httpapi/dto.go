package httpapi

import (
	"github.com/fyrsmithlabs/pipevet/internal/health"
	"github.com/fyrsmithlabs/pipevet/internal/journal"
	"github.com/fyrsmithlabs/pipevet/internal/orchestrator"
	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
	"github.com/fyrsmithlabs/pipevet/internal/secrets"
	"github.com/fyrsmithlabs/pipevet/internal/store"
	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

// ToHealthResponse converts an engine health rollup to its wire form. The
// diagnostic MCP surface reuses it so both surfaces emit identical JSON.
func ToHealthResponse(sys orchestrator.SystemHealth) v1.HealthResponse {
	out := v1.HealthResponse{
		Tier:           string(sys.Tier),
		ActiveSessions: sys.ActiveSessions,
	}
	if sys.Snapshot != nil {
		out.GeneratedAt = sys.Snapshot.GeneratedAt
		out.Short = toWindowReport(sys.Snapshot.Short)
		out.Long = toWindowReport(sys.Snapshot.Long)
	}
	return out
}

func toWindowReport(w health.WindowReport) v1.WindowReport {
	out := v1.WindowReport{
		WindowSeconds: w.Window.Seconds(),
		Stages:        make([]v1.StageHealth, 0, len(w.Stages)),
	}
	for _, st := range w.Stages {
		out.Stages = append(out.Stages, v1.StageHealth{
			Stage:         string(st.Stage),
			Total:         st.Total,
			Passed:        st.Passed,
			SuccessRate:   st.SuccessRate,
			AvgDurationMS: st.AvgDurationMS,
			AutoFixed:     st.AutoFixed,
		})
	}
	return out
}

// ToSessionReport converts an engine session report to its wire form.
func ToSessionReport(rep orchestrator.SessionReport) v1.SessionReport {
	out := v1.SessionReport{
		ReportID:    rep.ReportID,
		GeneratedAt: rep.GeneratedAt,
		SessionID:   rep.SessionID,
		Owner:       rep.Owner,
		Active:      rep.Active,
		State:       string(rep.State),
		Status:      string(rep.Status),
		StartedAt:   rep.StartedAt,
		Stages:      toStageRows(rep.Stages),
		Issues:      toIssues(rep.Issues),
		AutoFixes:   toAutoFixes(rep.AutoFixes),
		Quality:     toQuality(rep.Quality),
		Performance: toPerformance(rep.Performance),
		Flow:        toFlow(rep.Flow),
		Snapshots:   toSnapshots(rep.Snapshots),
	}
	if !rep.CompletedAt.IsZero() {
		t := rep.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func toStageRows(rows []orchestrator.StageRow) []v1.StageRow {
	if len(rows) == 0 {
		return nil
	}
	out := make([]v1.StageRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, v1.StageRow{
			Stage:           string(r.Stage),
			Attempts:        r.Attempts,
			Passed:          r.Passed,
			Severity:        string(r.Severity),
			IssueType:       r.IssueType,
			DurationMS:      r.DurationMS,
			AutoFixed:       r.AutoFixed,
			OutOfOrder:      r.OutOfOrder,
			LastValidatedAt: r.LastValidatedAt,
		})
	}
	return out
}

func toIssues(issues []pipeline.Issue) []v1.Issue {
	if len(issues) == 0 {
		return nil
	}
	out := make([]v1.Issue, 0, len(issues))
	for _, is := range issues {
		out = append(out, v1.Issue{
			Type:        is.Type,
			Stage:       string(is.Stage),
			Severity:    string(is.Severity),
			Description: is.Description,
			UserImpact:  is.UserImpact,
			Fixed:       is.Fixed,
			DetectedAt:  is.DetectedAt,
		})
	}
	return out
}

func toAutoFixes(fixes []pipeline.AutoFix) []v1.AutoFix {
	if len(fixes) == 0 {
		return nil
	}
	out := make([]v1.AutoFix, 0, len(fixes))
	for _, f := range fixes {
		out = append(out, v1.AutoFix{
			Stage:       string(f.Stage),
			FixType:     f.FixType,
			Applied:     f.Applied,
			RetryNeeded: f.RetryNeeded,
			AppliedAt:   f.AppliedAt,
		})
	}
	return out
}

func toQuality(q *pipeline.QualityMetrics) *v1.QualityMetrics {
	if q == nil {
		return nil
	}
	return &v1.QualityMetrics{
		OverallValid:    q.OverallValid,
		Scores:          q.Scores,
		CriticalIssues:  q.CriticalIssues,
		Warnings:        q.Warnings,
		Recommendations: q.Recommendations,
	}
}

func toPerformance(p *pipeline.PerformanceReport) *v1.PerformanceReport {
	if p == nil {
		return nil
	}
	out := &v1.PerformanceReport{
		TotalDurationMS: p.TotalDurationMS,
		StageDurations:  make(map[string]int64, len(p.StageDurations)),
		Score:           p.Score,
	}
	for stage, ms := range p.StageDurations {
		out.StageDurations[string(stage)] = ms
	}
	return out
}

func toFlow(f *journal.FlowResult) *v1.Flow {
	if f == nil {
		return nil
	}
	out := &v1.Flow{
		GrowthPercent: f.GrowthPercent,
		Stages:        make([]v1.StageFlow, 0, len(f.Stages)),
	}
	for _, sf := range f.Stages {
		out.Stages = append(out.Stages, v1.StageFlow{
			Stage:       string(sf.Stage),
			Added:       sf.Added,
			Removed:     sf.Removed,
			Modified:    sf.Modified,
			Hash:        sf.Hash,
			ContextSize: sf.ContextSize,
			Timestamp:   sf.Timestamp,
		})
	}
	for _, l := range f.Losses {
		out.Losses = append(out.Losses, v1.LossEvent{
			Field:      l.Field,
			Stage:      string(l.Stage),
			Severity:   string(l.Severity),
			DetectedAt: l.DetectedAt,
		})
	}
	return out
}

func toSnapshots(snaps []pipeline.ContextSnapshot) []v1.Snapshot {
	if len(snaps) == 0 {
		return nil
	}
	out := make([]v1.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, v1.Snapshot{
			Stage:     string(s.Stage),
			Hash:      s.Hash,
			Timestamp: s.Timestamp,
			Context:   s.Context,
		})
	}
	return out
}

func toAuditFindings(findings []secrets.AuditFinding) []v1.AuditFinding {
	if len(findings) == 0 {
		return nil
	}
	out := make([]v1.AuditFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, v1.AuditFinding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Location:    f.Location,
			Line:        f.Line,
			Preview:     f.Preview,
		})
	}
	return out
}

func toSimilarSessions(matches []store.SessionMatch) []v1.SimilarSession {
	out := make([]v1.SimilarSession, 0, len(matches))
	for _, m := range matches {
		out = append(out, v1.SimilarSession{
			SessionID: m.SessionID,
			Owner:     m.Owner,
			Status:    string(m.Status),
			Summary:   m.Summary,
			Score:     m.Score,
		})
	}
	return out
}
