package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/pipevet/internal/config"
	"github.com/fyrsmithlabs/pipevet/internal/logging"
)

// recordingSink captures delivered alerts.
type recordingSink struct {
	mu       sync.Mutex
	sessions []string
	details  []map[string]interface{}
	fired    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{fired: make(chan struct{}, 16)}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) NotifyCritical(_ context.Context, sessionID string, details map[string]interface{}) error {
	s.mu.Lock()
	s.sessions = append(s.sessions, sessionID)
	s.details = append(s.details, details)
	s.mu.Unlock()
	s.fired <- struct{}{}
	return nil
}

func (s *recordingSink) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// failingSink always errors.
type failingSink struct{}

func (failingSink) Name() string { return "failing" }
func (failingSink) NotifyCritical(context.Context, string, map[string]interface{}) error {
	return errors.New("delivery refused")
}

// panickingSink always panics.
type panickingSink struct{}

func (panickingSink) Name() string { return "panicking" }
func (panickingSink) NotifyCritical(context.Context, string, map[string]interface{}) error {
	panic("sink exploded")
}

func waitFired(t *testing.T, s *recordingSink) {
	t.Helper()
	select {
	case <-s.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not delivered")
	}
}

func TestNotify_DeliversInBackground(t *testing.T) {
	sink := newRecordingSink()

	Notify(sink, nil, "sess-1", map[string]interface{}{"status": "failed"})

	waitFired(t, sink)
	assert.Equal(t, []string{"sess-1"}, sink.delivered())
}

func TestNotify_NilSinkIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Notify(nil, nil, "sess-1", nil)
	})
}

func TestNotify_SinkPanicIsContained(t *testing.T) {
	tl := logging.NewTestLogger()

	assert.NotPanics(t, func() {
		Notify(panickingSink{}, tl.Underlying(), "sess-1", nil)
	})

	require.Eventually(t, func() bool {
		return tl.FilterMessage("alert sink panicked").Len() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotify_FailureIsLoggedAndDropped(t *testing.T) {
	tl := logging.NewTestLogger()

	Notify(failingSink{}, tl.Underlying(), "sess-9", nil)

	require.Eventually(t, func() bool {
		return tl.FilterMessage("critical alert delivery failed").Len() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogSink_WritesErrorEntry(t *testing.T) {
	tl := logging.NewTestLogger()
	sink := NewLogSink(tl.Underlying())

	err := sink.NotifyCritical(context.Background(), "sess-2", map[string]interface{}{"issues": 3})
	require.NoError(t, err)

	tl.AssertLogged(t, zapcore.ErrorLevel, "critical session alert")
	tl.AssertField(t, "critical session alert", "session_id", "sess-2")
}

func TestMultiSink_FansOutPastFailures(t *testing.T) {
	healthy := newRecordingSink()
	multi := NewMultiSink(nil, failingSink{}, panickingSink{}, healthy)

	err := multi.NotifyCritical(context.Background(), "sess-3", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, []string{"sess-3"}, healthy.delivered())
}

func TestMultiSink_DropsNilChildren(t *testing.T) {
	healthy := newRecordingSink()
	multi := NewMultiSink(nil, nil, healthy, nil)

	require.NoError(t, multi.NotifyCritical(context.Background(), "sess-4", nil))
	assert.Equal(t, []string{"sess-4"}, healthy.delivered())
}

func TestNewSink_DefaultIsLogOnly(t *testing.T) {
	sink, err := NewSink(context.Background(), config.AlertingConfig{}, nil)
	require.NoError(t, err)

	_, isLog := sink.(*LogSink)
	assert.True(t, isLog, "expected bare log sink, got %T", sink)
}

func TestNewSink_MisconfiguredGitHubFailsAtBoot(t *testing.T) {
	cfg := config.AlertingConfig{
		GitHub: config.GitHubAlertConfig{Enabled: true},
	}

	_, err := NewSink(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewSink_MisconfiguredNATSFailsAtBoot(t *testing.T) {
	cfg := config.AlertingConfig{
		NATS: config.NATSConfig{Enabled: true},
	}

	_, err := NewSink(context.Background(), cfg, nil)
	assert.Error(t, err)
}
