package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

func init() {
	RegisterFactory("openai", func(config map[string]any) (Provider, error) {
		apiKey := ""
		if key, ok := config["api_key"].(string); ok {
			apiKey = key
		}
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}

		baseURL := ""
		if url, ok := config["base_url"].(string); ok {
			baseURL = url
		}

		return NewOpenAIProvider(apiKey, baseURL), nil
	})
}

// ChatCompleter is the subset of the OpenAI client used by the provider.
// Declared as an interface for testability.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider implements Provider on top of the OpenAI chat completions API
type OpenAIProvider struct {
	client ChatCompleter
}

// NewOpenAIProvider creates a new OpenAI provider.
// baseURL overrides the default API endpoint when non-empty.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

// NewOpenAIProviderWithClient creates a provider backed by a custom client (useful for testing)
func NewOpenAIProviderWithClient(client ChatCompleter) *OpenAIProvider {
	return &OpenAIProvider{client: client}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// CreateCompletion creates a completion
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, p.classifyError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, NewProviderError("openai", ErrorCodeMalformedResponse, "no content in response", nil)
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// classifyError maps SDK and transport errors onto the provider error taxonomy.
func (p *OpenAIProvider) classifyError(err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		pe := NewProviderError("openai", ErrorCodeTimeout, "request timed out", err)
		pe.StatusCode = http.StatusServiceUnavailable
		return pe
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ErrorCodeUnknown
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			code = ErrorCodeAuthentication
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			code = ErrorCodeRateLimit
		case apiErr.HTTPStatusCode >= 500:
			code = ErrorCodeServerError
		case apiErr.HTTPStatusCode >= 400:
			code = ErrorCodeInvalidRequest
		}
		pe := NewProviderError("openai", code, apiErr.Message, err)
		pe.StatusCode = apiErr.HTTPStatusCode
		return pe
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		code := ErrorCodeServerError
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			code = ErrorCodeRateLimit
		}
		pe := NewProviderError("openai", code, reqErr.Error(), err)
		pe.StatusCode = reqErr.HTTPStatusCode
		return pe
	}

	// Connection resets and DNS failures arrive as plain transport errors.
	return NewProviderError("openai", ErrorCodeTimeout, err.Error(), err)
}
