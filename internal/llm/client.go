// Package llm wraps a completion provider with retry, timeout, and
// error classification.
package llm

import (
	"context"
	"log"
	"time"

	"github.com/higherself-ai/higherself/internal/llm/provider"
	"github.com/higherself-ai/higherself/internal/retry"
	"github.com/higherself-ai/higherself/pkg/observability"
)

// ClientConfig configures a completion client.
type ClientConfig struct {
	// Model is the provider model identifier (e.g., "gpt-4o").
	Model string
	// Temperature controls randomness (default 0.7).
	Temperature float64
	// MaxTokens caps the generated response length (default 1000).
	MaxTokens int
	// Retry is the backoff policy (defaults: 3 attempts, 1s base delay).
	Retry retry.Policy
	// Timeout bounds a single Complete call, all attempts and
	// backoff sleeps included (default 30s).
	Timeout time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
	c.Retry = c.Retry.Normalize()
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Client issues chat completions against a provider, retrying
// transient failures per the configured policy.
type Client struct {
	provider provider.Provider
	config   ClientConfig
}

// NewClient creates a completion client over the given provider.
func NewClient(p provider.Provider, config ClientConfig) *Client {
	return &Client{
		provider: p,
		config:   config.withDefaults(),
	}
}

// Complete sends the composed messages to the provider and returns the
// assistant text. On exhaustion it returns the last classified
// *provider.ProviderError.
func (c *Client) Complete(ctx context.Context, messages []provider.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := provider.CompletionRequest{
		Messages:    messages,
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	start := time.Now()
	var content string
	err := retry.Do(ctx, c.config.Retry, func(ctx context.Context, attempt int) error {
		resp, err := c.provider.CreateCompletion(ctx, req)
		if err != nil {
			pe := provider.AsProviderError(c.provider.Name(), err)
			log.Printf("completion attempt %d/%d failed: code=%s status=%d: %v",
				attempt+1, c.config.Retry.MaxAttempts, pe.Code, pe.StatusCode, pe)
			observability.RecordProviderAttempt(c.provider.Name(), pe.Code)
			return pe
		}
		if resp == nil || resp.Content == "" {
			// Enforced here as well as in providers, so every
			// registry entry is held to the same contract.
			pe := provider.NewProviderError(c.provider.Name(),
				provider.ErrorCodeMalformedResponse, "empty completion content", nil)
			log.Printf("completion attempt %d/%d failed: code=%s status=%d: %v",
				attempt+1, c.config.Retry.MaxAttempts, pe.Code, pe.StatusCode, pe)
			observability.RecordProviderAttempt(c.provider.Name(), pe.Code)
			return pe
		}
		observability.RecordProviderAttempt(c.provider.Name(), "success")
		content = resp.Content
		return nil
	})
	if err != nil {
		if err == context.DeadlineExceeded || err == context.Canceled {
			return "", provider.NewProviderError(c.provider.Name(), provider.ErrorCodeTimeout, "completion timed out", err)
		}
		return "", provider.AsProviderError(c.provider.Name(), err)
	}

	observability.RecordCompletionDuration(c.provider.Name(), time.Since(start))
	return content, nil
}
