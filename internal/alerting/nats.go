package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/config"
)

// NATSSink publishes alerts as JSON messages to a NATS subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSSink connects to the configured NATS server. The connection retries
// in the background, so a briefly unavailable broker does not fail startup.
func NewNATSSink(cfg config.NATSConfig, logger *zap.Logger) (*NATSSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats sink requires a url")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "pipevet.alerts.critical"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	logger.Info("alert sink connected to NATS",
		zap.String("url", cfg.URL),
		zap.String("subject", subject))

	return &NATSSink{conn: nc, subject: subject, logger: logger}, nil
}

// Name identifies the sink.
func (s *NATSSink) Name() string { return "nats" }

// NotifyCritical publishes the alert and flushes so the broker has it before
// the delivery deadline expires.
func (s *NATSSink) NotifyCritical(ctx context.Context, sessionID string, details map[string]interface{}) error {
	payload := alertPayload{
		SessionID: sessionID,
		Details:   details,
		RaisedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush alert: %w", err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}

var _ Sink = (*NATSSink)(nil)
