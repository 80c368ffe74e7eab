package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// TEIConfig configures the Text Embeddings Inference provider. TEI
// exposes an OpenAI-compatible /v1/embeddings endpoint, so the client
// speaks the OpenAI wire format against a self-hosted server.
type TEIConfig struct {
	// BaseURL is the TEI server endpoint, e.g. http://localhost:8080/v1.
	BaseURL string
	// Model is the model name served by TEI, e.g. BAAI/bge-small-en-v1.5.
	Model string
	// APIKey is optional; TEI ignores authentication by default.
	APIKey string
}

// TEIProvider generates embeddings against a TEI server.
type TEIProvider struct {
	embedder  *embeddings.EmbedderImpl
	model     string
	dimension int
	metrics   *Metrics
}

// NewTEIProvider creates a TEI-backed provider.
func NewTEIProvider(cfg TEIConfig, logger *zap.Logger) (*TEIProvider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// The client library requires a token even though TEI ignores it.
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &TEIProvider{
		embedder:  embedder,
		model:     cfg.Model,
		dimension: detectDimension(cfg.Model),
		metrics:   NewMetrics(logger),
	}, nil
}

// Embed generates an embedding for the text via the TEI server.
func (p *TEIProvider) Embed(ctx context.Context, text string) (vec []float32, embErr error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), embErr)
	}()

	if strings.TrimSpace(text) == "" {
		embErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, embErr
	}

	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		embErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, embErr
	}
	return vec, nil
}

// Dimension returns the expected vector size for the configured model.
func (p *TEIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the provider holds only an HTTP client.
func (p *TEIProvider) Close() error {
	return nil
}

var _ Provider = (*TEIProvider)(nil)
