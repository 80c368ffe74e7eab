package alerting

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/config"
)

// NewSink builds the configured alert pipeline. The log sink is always
// present; NATS and GitHub join when enabled. A misconfigured enabled sink
// fails construction so the problem surfaces at boot, not at the first
// critical session.
func NewSink(ctx context.Context, cfg config.AlertingConfig, logger *zap.Logger) (Sink, error) {
	sinks := []Sink{NewLogSink(logger)}

	if cfg.NATS.Enabled {
		ns, err := NewNATSSink(cfg.NATS, logger)
		if err != nil {
			return nil, fmt.Errorf("nats sink: %w", err)
		}
		sinks = append(sinks, ns)
	}

	if cfg.GitHub.Enabled {
		gs, err := NewGitHubSink(ctx, cfg.GitHub, logger)
		if err != nil {
			return nil, fmt.Errorf("github sink: %w", err)
		}
		sinks = append(sinks, gs)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMultiSink(logger, sinks...), nil
}
