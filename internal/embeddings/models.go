package embeddings

// modelDimensions maps known embedding models to their dimensions. Kept in
// an untagged file so provider selection works in every build flavor.
var modelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
}

// modelDimension returns the dimension for a known model name.
func modelDimension(model string) (int, bool) {
	dim, ok := modelDimensions[model]
	return dim, ok
}
