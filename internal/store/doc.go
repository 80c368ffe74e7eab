// Package store persists completed pipeline sessions and stage results.
//
// Three providers share one interface. The memory provider keeps everything
// in process and is the default. The chromem provider embeds chromem-go for
// durable storage plus similarity search over session summaries without any
// external service. The qdrant provider talks gRPC to a Qdrant server for
// deployments that already run one.
//
// Providers that index embeddings additionally implement SimilaritySearcher;
// callers detect the capability with a type assertion.
package store
