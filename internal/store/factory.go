package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/config"
	"github.com/fyrsmithlabs/pipevet/internal/embeddings"
)

// NewStore creates a Store from configuration.
//
// The provider field selects the implementation:
//   - "memory" (default): in-process, nothing survives a restart
//   - "chromem": embedded chromem-go, durable, no external service
//   - "qdrant": external Qdrant server over gRPC
//
// The embedder is required for chromem and qdrant, which index session
// summaries for similarity search; the memory provider ignores it.
func NewStore(cfg config.StoreConfig, embedder embeddings.Provider, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryStore(logger), nil

	case "chromem":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Chromem.Collection,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			UseTLS:     cfg.Qdrant.UseTLS,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			Collection: cfg.Qdrant.Collection,
			VectorSize: cfg.Qdrant.VectorSize,
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: memory, chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
