// Package openai provides an OpenAI implementation of the embedder.Provider
// interface using the OpenAI Embeddings API.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/gridironai/expertmem-go/pkg/embedder"
)

// Client is an OpenAI embedding client implementing embedder.Provider.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config is the configuration for the OpenAI embedder.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the embedding model name (default: text-embedding-ada-002).
	Model string

	// BaseURL is the API base URL (default: OpenAI official address).
	BaseURL string

	// Dimensions is the vector dimension (default: 1536).
	Dimensions int
}

// NewClient creates a new OpenAI embedding client.
//
// Parameters:
//   - cfg: Configuration containing APIKey, Model, BaseURL, Dimensions
//
// Returns:
//   - *Client: OpenAI embedding client instance
//   - error: Error if the configuration is invalid
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewOpenAIEmbedder: API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := openai.EmbeddingModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.AdaEmbeddingV2
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text to a vector.
//
// Provider failures are returned wrapping embedder.ErrUnavailable so the
// retriever can degrade to structured-only similarity.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedder.ErrUnavailable, err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no data returned from OpenAI API", embedder.ErrUnavailable)
	}

	return toFloat64(resp.Data[0].Embedding), nil
}

// EmbedBatch converts multiple texts to vectors in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedder.ErrUnavailable, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: unexpected number of results (got %d, expected %d)",
			embedder.ErrUnavailable, len(resp.Data), len(texts))
	}

	embeddings := make([][]float64, len(texts))
	for i, data := range resp.Data {
		embeddings[i] = toFloat64(data.Embedding)
	}
	return embeddings, nil
}

// Dimensions returns the vector dimensions.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close closes the client. The OpenAI SDK does not require explicit closing;
// this method is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}

// toFloat64 widens the API's float32 embedding to float64.
func toFloat64(embedding []float32) []float64 {
	out := make([]float64, len(embedding))
	for i, v := range embedding {
		out[i] = float64(v)
	}
	return out
}
