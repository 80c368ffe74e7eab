package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	v1 "github.com/fyrsmithlabs/pipevet/pkg/api/v1"
)

const (
	requestsFamily = "pipevet_http_requests_total"
	durationFamily = "pipevet_http_request_duration_seconds"
)

// Client polls a running daemon's health and metrics endpoints.
type Client struct {
	baseURL string
	client  *http.Client
}

// Sample is one dashboard observation.
type Sample struct {
	Tier           string
	ActiveSessions int
	GeneratedAt    time.Time
	Stages         []v1.StageHealth

	// RequestsTotal is the monotonic request counter summed over all label
	// sets; the dashboard derives throughput from consecutive samples.
	RequestsTotal float64

	// AvgLatencyMS is the lifetime average request latency.
	AvgLatencyMS float64

	// At is when the sample was taken.
	At time.Time
}

// NewClient creates a client for the daemon at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// FetchHealth retrieves the health rollup.
func (c *Client) FetchHealth(ctx context.Context) (v1.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return v1.HealthResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return v1.HealthResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return v1.HealthResponse{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var health v1.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return v1.HealthResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return health, nil
}

// FetchMetrics scrapes the exposition endpoint and reduces the request
// counter and latency histogram. Families absent before the first request
// count as zero.
func (c *Client) FetchMetrics(ctx context.Context) (requestsTotal, avgLatencyMS float64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metrics", nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse metrics: %w", err)
	}

	requestsTotal = sumCounter(families[requestsFamily])
	avgLatencyMS = averageHistogramMS(families[durationFamily])
	return requestsTotal, avgLatencyMS, nil
}

// Fetch takes one full sample.
func (c *Client) Fetch(ctx context.Context) (Sample, error) {
	health, err := c.FetchHealth(ctx)
	if err != nil {
		return Sample{}, err
	}

	requests, latency, err := c.FetchMetrics(ctx)
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		Tier:           health.Tier,
		ActiveSessions: health.ActiveSessions,
		GeneratedAt:    health.GeneratedAt,
		Stages:         health.Short.Stages,
		RequestsTotal:  requests,
		AvgLatencyMS:   latency,
		At:             time.Now(),
	}, nil
}

func sumCounter(fam *dto.MetricFamily) float64 {
	if fam == nil {
		return 0
	}
	var total float64
	for _, m := range fam.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func averageHistogramMS(fam *dto.MetricFamily) float64 {
	if fam == nil {
		return 0
	}
	var sum float64
	var count uint64
	for _, m := range fam.GetMetric() {
		h := m.GetHistogram()
		sum += h.GetSampleSum()
		count += h.GetSampleCount()
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) * 1000
}
