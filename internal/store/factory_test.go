package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pipevet/internal/config"
	"github.com/fyrsmithlabs/pipevet/internal/embeddings"
)

func TestNewStore_DefaultsToMemory(t *testing.T) {
	s, err := NewStore(config.StoreConfig{}, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &MemoryStore{}, s)
}

func TestNewStore_Chromem(t *testing.T) {
	cfg := config.StoreConfig{
		Provider: "chromem",
		Chromem: config.ChromemConfig{
			Path:       t.TempDir(),
			Collection: "factory_test",
		},
	}

	s, err := NewStore(cfg, embeddings.NewStaticProvider(64), nil)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &ChromemStore{}, s)

	// chromem indexes summaries, so the capability must be present.
	_, ok := s.(SimilaritySearcher)
	assert.True(t, ok)
}

func TestNewStore_UnknownProvider(t *testing.T) {
	_, err := NewStore(config.StoreConfig{Provider: "redis"}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMemoryStore_NoSimilaritySearch(t *testing.T) {
	var s Store = NewMemoryStore(nil)
	defer s.Close()

	_, ok := s.(SimilaritySearcher)
	assert.False(t, ok)
}
