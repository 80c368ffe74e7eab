//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	fastembed "github.com/anush008/fastembed-go"
	"go.uber.org/zap"
)

// FastEmbedConfig configures the local ONNX embedding provider.
type FastEmbedConfig struct {
	// Model is the model name, e.g. BAAI/bge-small-en-v1.5.
	Model string
	// CacheDir is where model files are downloaded. Defaults to
	// ~/.cache/pipevet/models.
	CacheDir string
	// MaxLength is the token truncation limit. Defaults to 512.
	MaxLength int
}

// fastEmbedModels maps model names to fastembed model identifiers.
var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// FastEmbedProvider generates embeddings locally via ONNX runtime.
// No network calls are made after the model files are downloaded.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	metrics   *Metrics
	logger    *zap.Logger
	mu        sync.RWMutex
	closed    bool
}

// NewFastEmbedProvider creates a local embedding provider. The ONNX
// runtime library must be installed; run `pvet init` to download it.
func NewFastEmbedProvider(cfg FastEmbedConfig, logger *zap.Logger) (*FastEmbedProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	modelName := cfg.Model
	if strings.TrimSpace(modelName) == "" {
		modelName = "BAAI/bge-small-en-v1.5"
	}
	model, ok := fastEmbedModels[modelName]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, modelName)
	}

	dimension, ok := modelDimension(modelName)
	if !ok {
		dimension = detectDimension(modelName)
	}

	// fastembed locates the ONNX runtime through ONNX_PATH. Point it at
	// the managed install when the caller has not set it.
	if os.Getenv("ONNX_PATH") == "" {
		if lib := GetONNXLibraryPath(); lib != "" {
			os.Setenv("ONNX_PATH", lib)
			logger.Debug("using managed onnx runtime", zap.String("path", lib))
		}
	}
	if !ONNXRuntimeExists() {
		return nil, fmt.Errorf("%w: ONNX runtime library not found, run `pvet init` or set ONNX_PATH", ErrInvalidConfig)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cache dir: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache", "pipevet", "models")
	}

	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = 512
	}

	showProgress := false
	embedding, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fastembed model %s: %w", modelName, err)
	}

	logger.Info("fastembed model ready",
		zap.String("model", modelName),
		zap.Int("dimension", dimension),
		zap.String("cache_dir", cacheDir))

	return &FastEmbedProvider{
		model:     embedding,
		modelName: modelName,
		dimension: dimension,
		metrics:   NewMetrics(logger),
		logger:    logger,
	}, nil
}

// Embed generates an embedding for the text using the local model.
func (p *FastEmbedProvider) Embed(ctx context.Context, text string) (vec []float32, embErr error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.modelName, "embed_query", time.Since(start), embErr)
	}()

	if strings.TrimSpace(text) == "" {
		embErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, embErr
	}

	select {
	case <-ctx.Done():
		embErr = ctx.Err()
		return nil, embErr
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		embErr = fmt.Errorf("%w: provider is closed", ErrEmbeddingFailed)
		return nil, embErr
	}

	vec, err := p.model.QueryEmbed(text)
	if err != nil {
		embErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, embErr
	}
	return vec, nil
}

// Dimension returns the vector size for the loaded model.
func (p *FastEmbedProvider) Dimension() int {
	return p.dimension
}

// Close releases the ONNX session.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.model.Destroy()
	return nil
}

var _ Provider = (*FastEmbedProvider)(nil)
