package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
)

// Provider abstracts the completion call so the composer can be tested
// against a fake.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client wraps the OpenAI chat-completions API with a per-call timeout.
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

type Option func(*Client)

// WithBaseURL points the client at an alternate endpoint (tests, proxies).
func WithBaseURL(apiKey, baseURL string) Option {
	return func(c *Client) {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		c.api = openai.NewClientWithConfig(cfg)
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates an LLM client. The timeout must stay below the
// delivery window so an unresponsive upstream degrades to the fallback
// reply instead of stalling the whole pipeline.
func NewClient(apiKey, model string, maxTokens int, temperature float32, timeout time.Duration, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("llm: api key must not be empty")
	}
	if model == "" {
		return nil, errors.New("llm: model must not be empty")
	}

	c := &Client{
		api:         openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete sends one chat completion request and returns the first choice
// text. Timeouts and upstream failures surface as errors; the caller
// decides the fallback behavior.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("llm: completion timed out after %s: %w", c.timeout, err)
		}
		return "", fmt.Errorf("llm: completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("llm: no choices in response")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", errors.New("llm: empty completion text")
	}

	utils.Zlog.Debug("LLM completion finished",
		zap.String("model", c.model),
		zap.Int("answer_len", len(answer)),
		zap.Duration("latency", time.Since(start)))

	return answer, nil
}
