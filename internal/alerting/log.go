package alerting

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes alerts to the structured log. It is always available and
// backs every deployment as the sink of last resort.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Name identifies the sink.
func (s *LogSink) Name() string { return "log" }

// NotifyCritical logs the alert at error level.
func (s *LogSink) NotifyCritical(_ context.Context, sessionID string, details map[string]interface{}) error {
	s.logger.Error("critical session alert",
		zap.String("session_id", sessionID),
		zap.Any("details", details))
	return nil
}

var _ Sink = (*LogSink)(nil)
