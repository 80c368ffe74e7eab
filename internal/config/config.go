// Package config provides configuration loading for pipevet.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables, with hardcoded defaults underneath. Quality gates and health
// thresholds are hand-tuned business constants; they are kept configurable
// here rather than derived.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Config holds the complete pipevet configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Quality       QualityConfig       `koanf:"quality"`
	Health        HealthConfig        `koanf:"health"`
	Store         StoreConfig         `koanf:"store"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Alerting      AlertingConfig      `koanf:"alerting"`
	Secrets       SecretsConfig       `koanf:"secrets"`
	MCP           MCPConfig           `koanf:"mcp"`
}

// ServerConfig holds HTTP facade configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
}

// PipelineConfig holds per-stage validation policy.
type PipelineConfig struct {
	// CriticalFields maps a stage name to the context fields that stage
	// introduces as critical. Stages inherit all critical fields of
	// earlier stages. Empty means compiled-in defaults.
	CriticalFields map[string][]string `koanf:"critical_fields"`
}

// QualityConfig holds business-quality scoring thresholds and weights.
type QualityConfig struct {
	Weights             WeightsConfig `koanf:"weights"`
	RelevanceGate       float64       `koanf:"relevance_gate"`
	ResponseQualityGate float64       `koanf:"response_quality_gate"`
	AuthenticityGate    float64       `koanf:"authenticity_gate"`

	// MaxEmbedCallsPerMinute bounds embedding provider traffic.
	MaxEmbedCallsPerMinute int `koanf:"max_embed_calls_per_minute"`

	// EmbedCacheSize bounds the embedding cache entry count.
	EmbedCacheSize int `koanf:"embed_cache_size"`

	// MinLength and MaxLength bound acceptable generated content length.
	MinLength int `koanf:"min_length"`
	MaxLength int `koanf:"max_length"`
}

// WeightsConfig holds the convex combination weights for the composite
// quality score. The weights must sum to 1.
type WeightsConfig struct {
	KeywordMatch       float64 `koanf:"keyword_match"`
	DomainMatch        float64 `koanf:"domain_match"`
	ContextRelevance   float64 `koanf:"context_relevance"`
	SemanticSimilarity float64 `koanf:"semantic_similarity"`
	Authenticity       float64 `koanf:"authenticity"`
}

// Sum returns the total of all weights.
func (w WeightsConfig) Sum() float64 {
	return w.KeywordMatch + w.DomainMatch + w.ContextRelevance + w.SemanticSimilarity + w.Authenticity
}

// HealthConfig holds health aggregation settings.
type HealthConfig struct {
	RollupInterval       Duration `koanf:"rollup_interval"`
	ShortWindow          Duration `koanf:"short_window"`
	LongWindow           Duration `koanf:"long_window"`
	SuccessRateThreshold float64  `koanf:"success_rate_threshold"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	// Provider selects the backing store: memory, chromem, or qdrant.
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds embedded chromem store settings.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingsConfig holds embedding provider settings.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: static, tei, or fastembed.
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// AlertingConfig holds critical-alert sink settings.
type AlertingConfig struct {
	NATS   NATSConfig        `koanf:"nats"`
	GitHub GitHubAlertConfig `koanf:"github"`
}

// NATSConfig holds NATS sink settings.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// GitHubAlertConfig holds GitHub-issue sink settings.
type GitHubAlertConfig struct {
	Enabled bool     `koanf:"enabled"`
	Owner   string   `koanf:"owner"`
	Repo    string   `koanf:"repo"`
	Token   Secret   `koanf:"token"`
	Labels  []string `koanf:"labels"`
}

// SecretsConfig holds snapshot scrubbing settings. Scrubbing is on unless
// explicitly disabled, so the zero value is safe.
type SecretsConfig struct {
	ScrubDisabled bool   `koanf:"scrub_disabled"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// MCPConfig holds the diagnostic MCP surface settings. The surface is
// available unless explicitly disabled, so the zero value is permissive.
type MCPConfig struct {
	Disabled bool `koanf:"disabled"`
}

// Default returns a configuration populated with the compiled-in
// defaults, without consulting any config file or the environment.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if err := c.Quality.Validate(); err != nil {
		return fmt.Errorf("quality config: %w", err)
	}
	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("health config: %w", err)
	}
	switch c.Store.Provider {
	case "memory", "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown store provider %q (must be memory, chromem, or qdrant)", c.Store.Provider)
	}
	switch c.Embeddings.Provider {
	case "static", "tei", "fastembed":
	default:
		return fmt.Errorf("unknown embeddings provider %q (must be static, tei, or fastembed)", c.Embeddings.Provider)
	}
	if c.Alerting.GitHub.Enabled {
		if c.Alerting.GitHub.Owner == "" || c.Alerting.GitHub.Repo == "" {
			return errors.New("github alerting requires owner and repo")
		}
		if !c.Alerting.GitHub.Token.IsSet() {
			return errors.New("github alerting requires a token")
		}
	}
	if c.Alerting.NATS.Enabled && c.Alerting.NATS.URL == "" {
		return errors.New("nats alerting requires a url")
	}
	return nil
}

// Validate checks the quality thresholds and weights.
func (q *QualityConfig) Validate() error {
	if math.Abs(q.Weights.Sum()-1.0) > 0.001 {
		return fmt.Errorf("composite weights must sum to 1, got %.3f", q.Weights.Sum())
	}
	for name, gate := range map[string]float64{
		"relevance_gate":        q.RelevanceGate,
		"response_quality_gate": q.ResponseQualityGate,
		"authenticity_gate":     q.AuthenticityGate,
	} {
		if gate <= 0 || gate >= 1 {
			return fmt.Errorf("%s must be in (0,1), got %.2f", name, gate)
		}
	}
	if q.MaxEmbedCallsPerMinute <= 0 {
		return errors.New("max_embed_calls_per_minute must be positive")
	}
	if q.MinLength < 0 || q.MaxLength <= q.MinLength {
		return fmt.Errorf("invalid length bounds [%d, %d]", q.MinLength, q.MaxLength)
	}
	return nil
}

// Validate checks the health aggregation settings.
func (h *HealthConfig) Validate() error {
	if h.RollupInterval.Duration() <= 0 {
		return errors.New("rollup interval must be positive")
	}
	if h.ShortWindow.Duration() <= 0 || h.LongWindow.Duration() <= h.ShortWindow.Duration() {
		return errors.New("windows must be positive with long > short")
	}
	if h.SuccessRateThreshold <= 0 || h.SuccessRateThreshold >= 1 {
		return fmt.Errorf("success rate threshold must be in (0,1), got %.2f", h.SuccessRateThreshold)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9190
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "pipevet"
	}

	// Quality defaults carry the hand-tuned business constants.
	if cfg.Quality.Weights.Sum() == 0 {
		cfg.Quality.Weights = WeightsConfig{
			KeywordMatch:       0.25,
			DomainMatch:        0.30,
			ContextRelevance:   0.20,
			SemanticSimilarity: 0.15,
			Authenticity:       0.10,
		}
	}
	if cfg.Quality.RelevanceGate == 0 {
		cfg.Quality.RelevanceGate = 0.65
	}
	if cfg.Quality.ResponseQualityGate == 0 {
		cfg.Quality.ResponseQualityGate = 0.6
	}
	if cfg.Quality.AuthenticityGate == 0 {
		cfg.Quality.AuthenticityGate = 0.8
	}
	if cfg.Quality.MaxEmbedCallsPerMinute == 0 {
		cfg.Quality.MaxEmbedCallsPerMinute = 60
	}
	if cfg.Quality.EmbedCacheSize == 0 {
		cfg.Quality.EmbedCacheSize = 1024
	}
	if cfg.Quality.MinLength == 0 {
		cfg.Quality.MinLength = 120
	}
	if cfg.Quality.MaxLength == 0 {
		cfg.Quality.MaxLength = 6000
	}

	if cfg.Health.RollupInterval == 0 {
		cfg.Health.RollupInterval = Duration(5 * time.Minute)
	}
	if cfg.Health.ShortWindow == 0 {
		cfg.Health.ShortWindow = Duration(time.Hour)
	}
	if cfg.Health.LongWindow == 0 {
		cfg.Health.LongWindow = Duration(24 * time.Hour)
	}
	if cfg.Health.SuccessRateThreshold == 0 {
		cfg.Health.SuccessRateThreshold = 0.80
	}

	// Store defaults (memory needs no external services).
	if cfg.Store.Provider == "" {
		cfg.Store.Provider = "memory"
	}
	if cfg.Store.Chromem.Path == "" {
		cfg.Store.Chromem.Path = "~/.config/pipevet/store"
	}
	if cfg.Store.Chromem.Collection == "" {
		cfg.Store.Chromem.Collection = "pipevet_sessions"
	}
	if cfg.Store.Qdrant.Host == "" {
		cfg.Store.Qdrant.Host = "localhost"
	}
	if cfg.Store.Qdrant.Port == 0 {
		cfg.Store.Qdrant.Port = 6334
	}
	if cfg.Store.Qdrant.Collection == "" {
		cfg.Store.Qdrant.Collection = "pipevet_sessions"
	}
	if cfg.Store.Qdrant.VectorSize == 0 {
		cfg.Store.Qdrant.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "static"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.Alerting.NATS.Subject == "" {
		cfg.Alerting.NATS.Subject = "pipevet.alerts.critical"
	}
	if len(cfg.Alerting.GitHub.Labels) == 0 {
		cfg.Alerting.GitHub.Labels = []string{"pipeline-critical"}
	}
}
