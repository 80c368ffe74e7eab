package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

const expositionFixture = `# HELP pipevet_http_requests_total HTTP requests by method, route, and status code.
# TYPE pipevet_http_requests_total counter
pipevet_http_requests_total{method="GET",route="/healthz",status="200"} 40
pipevet_http_requests_total{method="GET",route="/v1/health",status="200"} 10
# HELP pipevet_http_request_duration_seconds HTTP request duration in seconds by method, route, and status code.
# TYPE pipevet_http_request_duration_seconds histogram
pipevet_http_request_duration_seconds_bucket{method="GET",route="/healthz",status="200",le="0.005"} 40
pipevet_http_request_duration_seconds_bucket{method="GET",route="/healthz",status="200",le="+Inf"} 40
pipevet_http_request_duration_seconds_sum{method="GET",route="/healthz",status="200"} 0.4
pipevet_http_request_duration_seconds_count{method="GET",route="/healthz",status="200"} 40
pipevet_http_request_duration_seconds_bucket{method="GET",route="/v1/health",status="200",le="0.005"} 10
pipevet_http_request_duration_seconds_bucket{method="GET",route="/v1/health",status="200",le="+Inf"} 10
pipevet_http_request_duration_seconds_sum{method="GET",route="/v1/health",status="200"} 0.2
pipevet_http_request_duration_seconds_count{method="GET",route="/v1/health",status="200"} 10
`

func healthFixture() v1.HealthResponse {
	return v1.HealthResponse{
		Tier:           "healthy",
		ActiveSessions: 3,
		GeneratedAt:    time.Now().UTC(),
		Short: v1.WindowReport{
			WindowSeconds: 3600,
			Stages: []v1.StageHealth{
				{Stage: "fetch", Total: 50, Passed: 46, SuccessRate: 0.92, AvgDurationMS: 820, AutoFixed: 2},
				{Stage: "generate", Total: 48, Passed: 48, SuccessRate: 1.0, AvgDurationMS: 1430},
			},
		},
		Long: v1.WindowReport{WindowSeconds: 86400},
	}
}

func newDaemonStub(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/health":
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(healthFixture()))
		case "/metrics":
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			_, _ = w.Write([]byte(expositionFixture))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:9190")
	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:9190", client.baseURL)
	assert.NotNil(t, client.client)
}

func TestClient_FetchHealth(t *testing.T) {
	server := newDaemonStub(t)
	client := NewClient(server.URL)

	health, err := client.FetchHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Tier)
	assert.Equal(t, 3, health.ActiveSessions)
	require.Len(t, health.Short.Stages, 2)
	assert.Equal(t, "fetch", health.Short.Stages[0].Stage)
	assert.InDelta(t, 0.92, health.Short.Stages[0].SuccessRate, 0.001)
}

func TestClient_FetchHealth_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).FetchHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code 500")
}

func TestClient_FetchHealth_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).FetchHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestClient_FetchMetrics(t *testing.T) {
	server := newDaemonStub(t)
	client := NewClient(server.URL)

	requests, latencyMS, err := client.FetchMetrics(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, requests, 0.001)
	assert.InDelta(t, 12.0, latencyMS, 0.001)
}

func TestClient_FetchMetrics_MissingFamilies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# no pipevet families here\n"))
	}))
	defer server.Close()

	requests, latencyMS, err := NewClient(server.URL).FetchMetrics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, requests)
	assert.Zero(t, latencyMS)
}

func TestClient_FetchMetrics_InvalidExposition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pipevet_http_requests_total{unclosed 12\n"))
	}))
	defer server.Close()

	_, _, err := NewClient(server.URL).FetchMetrics(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse metrics")
}

func TestClient_Fetch(t *testing.T) {
	server := newDaemonStub(t)
	client := NewClient(server.URL)

	sample, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", sample.Tier)
	assert.Equal(t, 3, sample.ActiveSessions)
	assert.Len(t, sample.Stages, 2)
	assert.InDelta(t, 50.0, sample.RequestsTotal, 0.001)
	assert.InDelta(t, 12.0, sample.AvgLatencyMS, 0.001)
	assert.False(t, sample.At.IsZero())
}

func TestClient_Fetch_CancelledContext(t *testing.T) {
	server := newDaemonStub(t)
	client := NewClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx)
	require.Error(t, err)
}
