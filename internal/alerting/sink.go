package alerting

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// notifyTimeout bounds one background alert delivery.
const notifyTimeout = 5 * time.Second

// Sink delivers critical-session alerts to an external destination.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// NotifyCritical delivers one alert for the session. The details map is
	// read-only plain data: status, issue descriptions, owner.
	NotifyCritical(ctx context.Context, sessionID string, details map[string]interface{}) error
}

// alertPayload is the wire form of an alert for sinks that serialize.
type alertPayload struct {
	SessionID string                 `json:"session_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RaisedAt  time.Time              `json:"raised_at"`
}

// Notify fires one alert on a background goroutine and returns immediately.
// Delivery gets a bounded timeout; failures and panics are logged and
// dropped, never propagated to the caller.
func Notify(sink Sink, logger *zap.Logger, sessionID string, details map[string]interface{}) {
	if sink == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("alert sink panicked",
					zap.String("sink", sink.Name()),
					zap.String("session_id", sessionID),
					zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := sink.NotifyCritical(ctx, sessionID, details); err != nil {
			logger.Warn("critical alert delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}()
}
