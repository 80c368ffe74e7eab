//go:build cgo

package embeddings

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestNewFastEmbedProvider_UnsupportedModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "nonexistent-model"}, zap.NewNop())
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewFastEmbedProvider(t *testing.T) {
	// Downloads model files on first run.
	if testing.Short() {
		t.Skip("skipping FastEmbed test in short mode")
	}
	if !ONNXRuntimeExists() {
		t.Skip("ONNX runtime not available, skipping FastEmbed test")
	}

	tests := []struct {
		name    string
		cfg     FastEmbedConfig
		wantDim int
	}{
		{
			name:    "default model",
			cfg:     FastEmbedConfig{},
			wantDim: 384,
		},
		{
			name:    "small model",
			cfg:     FastEmbedConfig{Model: "BAAI/bge-small-en-v1.5"},
			wantDim: 384,
		},
		{
			name:    "base model",
			cfg:     FastEmbedConfig{Model: "BAAI/bge-base-en-v1.5"},
			wantDim: 768,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewFastEmbedProvider(tt.cfg, zap.NewNop())
			if err != nil {
				t.Fatalf("NewFastEmbedProvider() error = %v", err)
			}
			defer provider.Close()

			if provider.Dimension() != tt.wantDim {
				t.Errorf("Dimension() = %d, want %d", provider.Dimension(), tt.wantDim)
			}

			vec, err := provider.Embed(context.Background(), "local embedding smoke test")
			if err != nil {
				t.Fatalf("Embed() error = %v", err)
			}
			if len(vec) != tt.wantDim {
				t.Errorf("len = %d, want %d", len(vec), tt.wantDim)
			}
		})
	}
}
