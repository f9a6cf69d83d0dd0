package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// fakeChatCompleter returns scripted responses without touching the network.
type fakeChatCompleter struct {
	resp     openai.ChatCompletionResponse
	err      error
	lastReq  openai.ChatCompletionRequest
	reqCount int
}

func (f *fakeChatCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.reqCount++
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return f.resp, nil
}

func TestCreateCompletionExtractsContent(t *testing.T) {
	fake := &fakeChatCompleter{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{
					Message:      openai.ChatCompletionMessage{Role: "assistant", Content: "Hi there"},
					FinishReason: openai.FinishReasonStop,
				},
			},
			Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		},
	}
	p := NewOpenAIProviderWithClient(fake)

	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "You are helpful."},
			{Role: "user", Content: "Hello"},
		},
		Model:       "gpt-4o",
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		t.Fatalf("CreateCompletion() error = %v", err)
	}

	if resp.Content != "Hi there" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hi there")
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, "stop")
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}

	if fake.lastReq.Model != "gpt-4o" {
		t.Errorf("request model = %q", fake.lastReq.Model)
	}
	if len(fake.lastReq.Messages) != 2 {
		t.Errorf("request messages = %d, want 2", len(fake.lastReq.Messages))
	}
	if fake.lastReq.MaxTokens != 1000 {
		t.Errorf("request MaxTokens = %d, want 1000", fake.lastReq.MaxTokens)
	}
}

func TestCreateCompletionDefaultModel(t *testing.T) {
	fake := &fakeChatCompleter{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "ok"}},
			},
		},
	}
	p := NewOpenAIProviderWithClient(fake)

	if _, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}); err != nil {
		t.Fatalf("CreateCompletion() error = %v", err)
	}
	if fake.lastReq.Model != defaultOpenAIModel {
		t.Errorf("request model = %q, want %q", fake.lastReq.Model, defaultOpenAIModel)
	}
}

func TestCreateCompletionMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		resp openai.ChatCompletionResponse
	}{
		{"no choices", openai.ChatCompletionResponse{}},
		{"empty content", openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: ""}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOpenAIProviderWithClient(&fakeChatCompleter{resp: tt.resp})

			_, err := p.CreateCompletion(context.Background(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hi"}},
			})

			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *ProviderError", err)
			}
			if pe.Code != ErrorCodeMalformedResponse {
				t.Errorf("Code = %q, want %q", pe.Code, ErrorCodeMalformedResponse)
			}
			if !pe.Retryable() {
				t.Error("malformed response should be retryable")
			}
		})
	}
}

func TestClassifyAPIErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantCode      string
		wantRetryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrorCodeAuthentication, false},
		{"forbidden", http.StatusForbidden, ErrorCodeAuthentication, false},
		{"rate limited", http.StatusTooManyRequests, ErrorCodeRateLimit, true},
		{"server error", http.StatusInternalServerError, ErrorCodeServerError, true},
		{"bad gateway", http.StatusBadGateway, ErrorCodeServerError, true},
		{"bad request", http.StatusBadRequest, ErrorCodeInvalidRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := &openai.APIError{HTTPStatusCode: tt.status, Message: "upstream says no"}
			p := NewOpenAIProviderWithClient(&fakeChatCompleter{err: apiErr})

			_, err := p.CreateCompletion(context.Background(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hi"}},
			})

			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *ProviderError", err)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", pe.Code, tt.wantCode)
			}
			if pe.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", pe.StatusCode, tt.status)
			}
			if pe.Retryable() != tt.wantRetryable {
				t.Errorf("Retryable() = %v, want %v", pe.Retryable(), tt.wantRetryable)
			}
		})
	}
}

func TestClassifyContextErrors(t *testing.T) {
	for _, cause := range []error{context.DeadlineExceeded, context.Canceled} {
		p := NewOpenAIProviderWithClient(&fakeChatCompleter{err: cause})

		_, err := p.CreateCompletion(context.Background(), CompletionRequest{
			Messages: []Message{{Role: "user", Content: "hi"}},
		})

		var pe *ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("error = %v, want *ProviderError", err)
		}
		if pe.Code != ErrorCodeTimeout {
			t.Errorf("Code = %q, want %q", pe.Code, ErrorCodeTimeout)
		}
		if pe.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("StatusCode = %d, want 503", pe.StatusCode)
		}
		if !errors.Is(err, cause) {
			t.Errorf("classified error should wrap %v", cause)
		}
	}
}

func TestClassifyTransportError(t *testing.T) {
	p := NewOpenAIProviderWithClient(&fakeChatCompleter{err: errors.New("dial tcp: connection refused")})

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if pe.Code != ErrorCodeTimeout {
		t.Errorf("Code = %q, want %q", pe.Code, ErrorCodeTimeout)
	}
	if !pe.Retryable() {
		t.Error("transport errors should be retryable")
	}
}

func TestRegistryNew(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	p, err := New("openai", map[string]any{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q", p.Name())
	}

	if _, err := New("nope", nil); err == nil {
		t.Error("New() with unknown provider should fail")
	}

	names := List()
	found := false
	for _, n := range names {
		if n == "openai" {
			found = true
		}
	}
	if !found {
		t.Errorf("List() = %v, want openai registered", names)
	}
}

func TestAsProviderError(t *testing.T) {
	pe := NewProviderError("openai", ErrorCodeRateLimit, "slow down", nil)
	if got := AsProviderError("openai", pe); got != pe {
		t.Error("AsProviderError should pass through *ProviderError unchanged")
	}

	got := AsProviderError("openai", errors.New("mystery"))
	if got.Code != ErrorCodeUnknown {
		t.Errorf("Code = %q, want %q", got.Code, ErrorCodeUnknown)
	}
	if got.Retryable() {
		t.Error("unknown errors should not be retryable")
	}

	if AsProviderError("openai", nil) != nil {
		t.Error("AsProviderError(nil) should be nil")
	}
}
