//go:build !cgo

package embeddings

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without
// cgo support, which the ONNX runtime bindings require.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (built without cgo, use the tei or static provider)")

// FastEmbedConfig configures the local ONNX embedding provider.
type FastEmbedConfig struct {
	// Model is the model name, e.g. BAAI/bge-small-en-v1.5.
	Model string
	// CacheDir is where model files are downloaded.
	CacheDir string
	// MaxLength is the token truncation limit.
	MaxLength int
}

// FastEmbedProvider is a stub in non-cgo builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider always fails without cgo.
func NewFastEmbedProvider(_ FastEmbedConfig, _ *zap.Logger) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Embed always fails without cgo.
func (p *FastEmbedProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Dimension returns zero without cgo.
func (p *FastEmbedProvider) Dimension() int {
	return 0
}

// Close is a no-op without cgo.
func (p *FastEmbedProvider) Close() error {
	return nil
}
