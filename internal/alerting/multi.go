package alerting

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// MultiSink fans one alert out to every child sink. A failing or panicking
// child never blocks delivery to its siblings.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMultiSink creates a fan-out sink. Nil children are dropped.
func NewMultiSink(logger *zap.Logger, sinks ...Sink) *MultiSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept, logger: logger}
}

// Name identifies the sink.
func (s *MultiSink) Name() string { return "multi" }

// NotifyCritical attempts every child and returns the joined failures.
func (s *MultiSink) NotifyCritical(ctx context.Context, sessionID string, details map[string]interface{}) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := s.deliver(ctx, sink, sessionID, details); err != nil {
			s.logger.Warn("alert sink failed",
				zap.String("sink", sink.Name()),
				zap.String("session_id", sessionID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *MultiSink) deliver(ctx context.Context, sink Sink, sessionID string, details map[string]interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.NotifyCritical(ctx, sessionID, details)
}

// Close closes every child that holds a connection.
func (s *MultiSink) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if closer, ok := sink.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

var _ Sink = (*MultiSink)(nil)
