package health

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/config"
	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
	"github.com/fyrsmithlabs/pipevet/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/pipevet/internal/health"

// Tier is the system-wide health classification.
type Tier string

const (
	TierHealthy  Tier = "healthy"
	TierWarning  Tier = "warning"
	TierDegraded Tier = "degraded"
	TierCritical Tier = "critical"
)

// StageHealth is the rollup for one stage over one trailing window.
type StageHealth struct {
	Stage         pipeline.Stage `json:"stage"`
	Total         int            `json:"total"`
	Passed        int            `json:"passed"`
	SuccessRate   float64        `json:"success_rate"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	AutoFixed     int            `json:"auto_fixed"`
}

// WindowReport groups per-stage rollups for one trailing window.
type WindowReport struct {
	Window time.Duration `json:"window"`
	Stages []StageHealth `json:"stages"`
}

// Snapshot is one point-in-time view of pipeline health. The tier is judged
// on the short window; the long window is context for trend reading.
type Snapshot struct {
	Tier        Tier         `json:"tier"`
	GeneratedAt time.Time    `json:"generated_at"`
	Short       WindowReport `json:"short"`
	Long        WindowReport `json:"long"`
}

// Aggregator computes read-only health rollups over persisted stage results.
// It never mutates session state.
type Aggregator struct {
	store       store.Store
	shortWindow time.Duration
	longWindow  time.Duration
	threshold   float64
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewAggregator creates an aggregator with the configured windows and
// success-rate threshold.
func NewAggregator(st store.Store, cfg config.HealthConfig, logger *zap.Logger) (*Aggregator, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Aggregator{
		store:       st,
		shortWindow: cfg.ShortWindow.Duration(),
		longWindow:  cfg.LongWindow.Duration(),
		threshold:   cfg.SuccessRateThreshold,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
	}
	if a.shortWindow <= 0 {
		a.shortWindow = time.Hour
	}
	if a.longWindow <= 0 {
		a.longWindow = 24 * time.Hour
	}
	if a.threshold <= 0 || a.threshold > 1 {
		a.threshold = 0.80
	}
	return a, nil
}

// Snapshot rolls up both trailing windows. A failing read for one stage is
// logged and skipped so the rest of the snapshot survives; the call errors
// only when every read failed.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	ctx, span := a.tracer.Start(ctx, "health.snapshot")
	defer span.End()

	var readErrs, reads int
	rollup := func(window time.Duration) WindowReport {
		report := WindowReport{Window: window, Stages: make([]StageHealth, 0, len(pipeline.CanonicalOrder()))}
		for _, stage := range pipeline.CanonicalOrder() {
			reads++
			results, err := a.store.LoadRecentResults(ctx, stage, window)
			if err != nil {
				readErrs++
				a.logger.Warn("health rollup read failed",
					zap.String("stage", string(stage)),
					zap.Duration("window", window),
					zap.Error(err),
				)
				continue
			}
			report.Stages = append(report.Stages, rollupStage(stage, results))
		}
		return report
	}

	short := rollup(a.shortWindow)
	long := rollup(a.longWindow)

	if readErrs == reads && reads > 0 {
		return nil, fmt.Errorf("health rollup failed: all %d store reads errored", reads)
	}

	snap := &Snapshot{
		Tier:        computeTier(short.Stages, a.threshold),
		GeneratedAt: time.Now(),
		Short:       short,
		Long:        long,
	}
	span.SetAttributes(attribute.String("tier", string(snap.Tier)))
	return snap, nil
}

// rollupStage folds stored results into one StageHealth.
func rollupStage(stage pipeline.Stage, results []store.StoredResult) StageHealth {
	h := StageHealth{Stage: stage, SuccessRate: 1.0}
	if len(results) == 0 {
		return h
	}

	var totalDuration int64
	for _, r := range results {
		h.Total++
		if r.Result.Passed {
			h.Passed++
		}
		if r.Result.AutoFixed {
			h.AutoFixed++
		}
		totalDuration += r.Result.DurationMS
	}
	h.SuccessRate = float64(h.Passed) / float64(h.Total)
	h.AvgDurationMS = float64(totalDuration) / float64(h.Total)
	return h
}

// computeTier classifies system health from per-stage short-window rollups.
// Stages without samples never count against the tier.
func computeTier(stages []StageHealth, threshold float64) Tier {
	belowThreshold := 0
	anyFailure := false
	for _, s := range stages {
		if s.Total == 0 {
			continue
		}
		if s.SuccessRate < threshold {
			belowThreshold++
		}
		if s.Passed < s.Total {
			anyFailure = true
		}
	}
	switch {
	case belowThreshold >= 2:
		return TierCritical
	case belowThreshold == 1:
		return TierDegraded
	case anyFailure:
		return TierWarning
	default:
		return TierHealthy
	}
}
