package provider

import (
	"context"
	"sync"
)

// MockProvider is a scripted provider for testing. Each call consumes
// the next queued error or response; when the script runs out it
// returns a default response.
type MockProvider struct {
	name string

	// Responses to return for each request
	CompletionResponses []*CompletionResponse
	Errors              []error

	// Track calls
	CompletionCalls []CompletionRequest

	mu           sync.Mutex
	currentIndex int
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name implements Provider
func (m *MockProvider) Name() string {
	return m.name
}

// CreateCompletion implements Provider
func (m *MockProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompletionCalls = append(m.CompletionCalls, request)

	if m.currentIndex < len(m.Errors) && m.Errors[m.currentIndex] != nil {
		err := m.Errors[m.currentIndex]
		m.currentIndex++
		return nil, err
	}

	if m.currentIndex < len(m.CompletionResponses) {
		response := m.CompletionResponses[m.currentIndex]
		m.currentIndex++
		return response, nil
	}

	return &CompletionResponse{
		Content:      "Mock response",
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}, nil
}

// CallCount returns the number of completion calls made so far.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompletionCalls)
}
