// Package llm provides the model invocation client for the RLM engine.
//
// A client performs exactly one request/response exchange per call; the
// orchestrator supplies the full message history each time. Every call
// reports token usage and a cost estimate derived from the price table.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/openrouter"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrUnknownModel indicates a model id absent from the price table.
	ErrUnknownModel = errors.New("model not in price table")

	// ErrEmptyResponse indicates the provider returned no text.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation history.
type Message struct {
	Role    Role
	Content string
}

// Usage reports token consumption for a single call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Response is the outcome of a single model invocation.
type Response struct {
	Text  string
	Usage Usage

	// Cost is the USD estimate for this call from the price table.
	Cost float64
}

// Client issues single request/response exchanges with a model provider.
// Implementations are stateless per call.
type Client interface {
	Invoke(ctx context.Context, model string, messages []Message, maxTokens int) (*Response, error)
}

// FantasyClient implements Client on top of a fantasy provider.
type FantasyClient struct {
	provider    fantasy.Provider
	prices      PriceTable
	maxAttempts uint64
	baseDelay   time.Duration
}

// ClientConfig configures the fantasy-backed client.
type ClientConfig struct {
	// APIKey is the OpenRouter API key. Falls back to OPENROUTER_API_KEY.
	APIKey string

	// Prices overrides the default price table.
	Prices PriceTable

	// MaxAttempts bounds retries per call (default 3).
	MaxAttempts uint64

	// BaseDelay is the initial backoff delay (default 500ms).
	BaseDelay time.Duration
}

// NewFantasyClient creates a client backed by the OpenRouter provider.
func NewFantasyClient(cfg ClientConfig) (*FantasyClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key not provided (set OPENROUTER_API_KEY)")
	}

	provider, err := openrouter.New(openrouter.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create OpenRouter provider: %w", err)
	}

	return NewFantasyClientWithProvider(provider, cfg), nil
}

// NewFantasyClientWithProvider creates a client over an existing provider.
func NewFantasyClientWithProvider(provider fantasy.Provider, cfg ClientConfig) *FantasyClient {
	prices := cfg.Prices
	if prices == nil {
		prices = DefaultPrices()
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 3
	}
	delay := cfg.BaseDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	return &FantasyClient{
		provider:    provider,
		prices:      prices,
		maxAttempts: attempts,
		baseDelay:   delay,
	}
}

// Prices returns the client's price table.
func (c *FantasyClient) Prices() PriceTable {
	return c.prices
}

// Invoke performs one exchange with the given model.
//
// Transient provider failures are retried with exponential backoff up to
// the configured attempt count; exhausting retries is a fatal fault for
// the call. Unknown model ids fail before any network traffic.
func (c *FantasyClient) Invoke(ctx context.Context, model string, messages []Message, maxTokens int) (*Response, error) {
	if !c.prices.Has(model) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	prompt := make(fantasy.Prompt, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			prompt = append(prompt, fantasy.NewSystemMessage(m.Content))
		case RoleAssistant:
			prompt = append(prompt, fantasy.Message{
				Role:    fantasy.MessageRoleAssistant,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: m.Content}},
			})
		default:
			prompt = append(prompt, fantasy.NewUserMessage(m.Content))
		}
	}

	lm, err := c.provider.LanguageModel(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("get language model %q: %w", model, err)
	}

	maxTokens64 := int64(maxTokens)
	call := fantasy.Call{
		Prompt:          prompt,
		MaxOutputTokens: &maxTokens64,
	}

	var resp *fantasy.Response
	backoff := retry.WithMaxRetries(c.maxAttempts-1, retry.NewExponential(c.baseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var genErr error
		resp, genErr = lm.Generate(ctx, call)
		if genErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			// Cancellation is not a provider fault; do not retry.
			return genErr
		}
		slog.Debug("provider call failed, retrying", "model", model, "error", genErr)
		return retry.RetryableError(genErr)
	})
	if err != nil {
		return nil, fmt.Errorf("generate with %q: %w", model, err)
	}

	text := resp.Content.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}

	usage := Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}
	cost, err := c.prices.Cost(model, usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		return nil, err
	}

	return &Response{Text: text, Usage: usage, Cost: cost}, nil
}
