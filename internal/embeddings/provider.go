package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates embedding vectors.
type Provider interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Provider is the provider type: "static", "tei", or "fastembed".
	Provider string

	// Model is the embedding model name.
	Model string

	// BaseURL is the endpoint URL (tei provider only).
	BaseURL string

	// APIKey authenticates against the endpoint (tei provider, optional).
	APIKey string

	// CacheDir is the model cache directory (fastembed provider only).
	CacheDir string

	// Dimension overrides the vector size (static provider only).
	Dimension int
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg Config, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "static", "":
		return NewStaticProvider(cfg.Dimension), nil
	case "tei":
		return NewTEIProvider(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		}, logger)
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimension returns the embedding dimension for a model name,
// falling back to 384.
func detectDimension(model string) int {
	if dim, ok := modelDimension(model); ok {
		return dim
	}
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	default:
		return 384
	}
}
