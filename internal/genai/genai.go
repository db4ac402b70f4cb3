// Package genai provides the text-generation capability used by the intent
// resolver and summarizer, backed by the OpenAI chat completions API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientInterface is the minimal surface the rest of the system depends on.
// Tests substitute a mock implementation.
type ClientInterface interface {
	// Generate produces one chat completion for the given system and user
	// prompts and returns the response text.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Option configures Opts.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API endpoint (for proxies or compatible servers).
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithModel overrides the default chat model.
func WithModel(m string) Option {
	return func(o *Opts) { o.Model = m }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not set via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	model := openai.ChatModelGPT4oMini
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}

	slog.Debug("genai.NewClient: client configured", "model", model, "base_url_set", cfg.BaseURL != "")
	return &Client{client: openai.NewClient(reqOpts...), model: model}, nil
}

// Generate produces a single chat completion. Temperature is pinned to zero:
// both consumers (classification, summarization) want deterministic output.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
