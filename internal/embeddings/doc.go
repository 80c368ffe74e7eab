// Package embeddings provides embedding generation for quality scoring and
// report similarity search.
//
// Three providers sit behind one interface: static (deterministic
// token-hash vectors, no external dependencies), tei (OpenAI-compatible
// HTTP endpoint such as a local Text Embeddings Inference server), and
// fastembed (local ONNX models, cgo builds only). The factory selects a
// provider at runtime and detects dimensions for common models.
package embeddings
