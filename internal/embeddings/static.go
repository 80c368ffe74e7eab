package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// StaticProvider generates deterministic pseudo-embeddings from token
// hashes. Identical texts embed identically and texts sharing vocabulary
// land near each other, which gives offline scoring and tests usable
// similarity signal without a model server.
type StaticProvider struct {
	dimension int
}

// NewStaticProvider creates a static provider. A non-positive dimension
// falls back to 384.
func NewStaticProvider(dimension int) *StaticProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &StaticProvider{dimension: dimension}
}

// Embed generates a normalized token-hash vector for the text.
func (p *StaticProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vec := make([]float32, p.dimension)
	for _, token := range hashTokens(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(p.dimension))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Text tokenized to nothing; a unit vector keeps cosine defined.
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// Dimension returns the vector size.
func (p *StaticProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the provider holds no resources.
func (p *StaticProvider) Close() error {
	return nil
}

// hashTokens lowercases the text and splits on non-alphanumeric runes.
func hashTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var _ Provider = (*StaticProvider)(nil)
