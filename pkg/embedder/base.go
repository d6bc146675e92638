// Package embedder provides interfaces for text embedding providers.
//
// It defines the Provider interface that all embedding implementations must
// satisfy, enabling text-to-vector conversion for similarity search.
package embedder

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding provider failed or timed out.
//
// Implementations must wrap this sentinel on provider errors so that the
// retriever can degrade to structured-only similarity. A provider must never
// hide a failure behind a zero vector: a zero vector looks like real signal
// and corrupts similarity scoring, while a typed failure lets callers tell
// "no signal" apart from "embedding error".
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider defines the interface for embedding providers.
//
// All embedding implementations (OpenAI, Qwen) must implement this
// interface. Same text must map to vectors with cosine similarity close to
// 1 (not necessarily bit-identical).
type Provider interface {
	// Embed converts a text string into a vector embedding.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - text: The input text to embed
	//
	// Returns the embedding vector, or an error wrapping ErrUnavailable if
	// the provider cannot serve the request.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings.
	//
	// This method is more efficient than calling Embed multiple times, as it
	// can batch process requests. The returned slice matches the input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of embedding vectors produced by this
	// provider.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}
