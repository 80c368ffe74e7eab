package embeddings

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantError bool
	}{
		{
			name:      "empty provider defaults to static",
			cfg:       Config{},
			wantError: false,
		},
		{
			name: "static provider",
			cfg:  Config{Provider: "static", Dimension: 128},
		},
		{
			name: "tei provider with valid config",
			cfg: Config{
				Provider: "tei",
				BaseURL:  "http://localhost:8080/v1",
				Model:    "BAAI/bge-small-en-v1.5",
			},
		},
		{
			name: "tei provider without base URL",
			cfg: Config{
				Provider: "tei",
				Model:    "BAAI/bge-small-en-v1.5",
			},
			wantError: true,
		},
		{
			name: "tei provider without model",
			cfg: Config{
				Provider: "tei",
				BaseURL:  "http://localhost:8080/v1",
			},
			wantError: true,
		},
		{
			name:      "unknown provider",
			cfg:       Config{Provider: "sorcery"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg, zap.NewNop())
			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if provider != nil {
				provider.Close()
			}
		})
	}
}

func TestNewProvider_StaticEmbeds(t *testing.T) {
	provider, err := NewProvider(Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer provider.Close()

	vec, err := provider.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != provider.Dimension() {
		t.Errorf("len = %d, want %d", len(vec), provider.Dimension())
	}
}

func TestTEIProvider_Dimension(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantDim int
	}{
		{"small model", "BAAI/bge-small-en-v1.5", 384},
		{"base model", "BAAI/bge-base-en-v1.5", 768},
		{"mini model", "sentence-transformers/all-MiniLM-L6-v2", 384},
		{"unknown defaults to 384", "unknown-model", 384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewTEIProvider(TEIConfig{
				BaseURL: "http://localhost:8080/v1",
				Model:   tt.model,
			}, zap.NewNop())
			if err != nil {
				t.Fatalf("NewTEIProvider() error = %v", err)
			}
			defer provider.Close()

			if provider.Dimension() != tt.wantDim {
				t.Errorf("Dimension() = %d, want %d", provider.Dimension(), tt.wantDim)
			}
		})
	}
}

func TestDetectDimension(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"text-embedding-3-large", 3072},
		{"custom-base-model", 768},
		{"custom-large-model", 1024},
		{"mystery", 384},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := detectDimension(tt.model); got != tt.want {
				t.Errorf("detectDimension(%q) = %d, want %d", tt.model, got, tt.want)
			}
		})
	}
}

func TestModelDimension(t *testing.T) {
	if dim, ok := modelDimension("BAAI/bge-small-en-v1.5"); !ok || dim != 384 {
		t.Errorf("modelDimension = %d, %v; want 384, true", dim, ok)
	}
	if _, ok := modelDimension("made-up-model"); ok {
		t.Error("expected unknown model to report ok=false")
	}
}
