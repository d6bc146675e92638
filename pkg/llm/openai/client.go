// Package openai provides an OpenAI implementation of the llm.Generator
// interface using the Chat Completions API.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/gridironai/expertmem-go/pkg/llm"
)

// Client is an OpenAI chat client implementing llm.Generator.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for the OpenAI generator.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the model name (default: gpt-4o-mini).
	Model string

	// BaseURL is the API base URL (default: OpenAI official address).
	BaseURL string
}

// NewClient creates a new OpenAI generator client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewClient: API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Generate generates text from a single prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

// GenerateWithMessages generates text from a conversation history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("Generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("Generate: no choices returned from OpenAI API")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close closes the client. The OpenAI SDK does not require explicit closing;
// this method is retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
