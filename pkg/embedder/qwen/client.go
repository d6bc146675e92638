// Package qwen provides a Qwen implementation of the embedder.Provider
// interface using the Alibaba Cloud DashScope Text Embedding API.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gridironai/expertmem-go/pkg/embedder"
)

// Client implements embedder.Provider using the DashScope Text Embedding API.
type Client struct {
	// client is the HTTP client for API requests.
	client *http.Client

	// apiKey is the DashScope API key.
	apiKey string

	// model is the Qwen embedding model name to use.
	model string

	// baseURL is the base URL for DashScope API.
	baseURL string

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a Qwen embedding client.
type Config struct {
	// APIKey is the DashScope API key (required).
	APIKey string

	// Model is the model name to use (default: "text-embedding-v4").
	Model string

	// BaseURL is the API base URL (default: DashScope official address).
	BaseURL string

	// Dimensions is the vector dimension (default: 1536).
	Dimensions int

	// HTTPClient is a custom HTTP client (uses a 30s-timeout default if nil).
	HTTPClient *http.Client
}

// NewClient creates a new Qwen embedding client.
//
// Parameters:
//   - cfg: Configuration containing APIKey, Model, BaseURL, Dimensions
//
// Returns:
//   - *Client: Qwen embedding client instance
//   - error: Error if the configuration is invalid (e.g. missing APIKey)
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewQwenEmbedder: API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-v4"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		client:     client,
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text to a vector.
//
// Provider failures are returned wrapping embedder.ErrUnavailable.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	embeddings, err := c.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch converts multiple texts to vectors in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	embeddings, err := c.request(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: unexpected number of results (got %d, expected %d)",
			embedder.ErrUnavailable, len(embeddings), len(texts))
	}
	return embeddings, nil
}

// request performs one DashScope embedding call.
func (c *Client) request(ctx context.Context, texts []string) ([][]float64, error) {
	reqBody := map[string]interface{}{
		"model": c.model,
		"input": map[string]interface{}{
			"texts": texts,
		},
		"text_type": "document",
	}
	if c.dimensions > 0 {
		reqBody["parameters"] = map[string]interface{}{
			"dimension": c.dimensions,
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/services/embeddings/text-embedding/text-embedding", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedder.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", embedder.ErrUnavailable, resp.StatusCode, string(body))
	}

	var response struct {
		Output struct {
			Embeddings []struct {
				Embedding []float64 `json:"embedding"`
			} `json:"embeddings"`
		} `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", embedder.ErrUnavailable, err)
	}

	if len(response.Output.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned from Qwen API", embedder.ErrUnavailable)
	}

	embeddings := make([][]float64, len(response.Output.Embeddings))
	for i, e := range response.Output.Embeddings {
		embeddings[i] = e.Embedding
	}
	return embeddings, nil
}

// Dimensions returns the vector dimensions.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close closes the client.
func (c *Client) Close() error {
	return nil
}
