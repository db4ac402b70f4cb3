package genai

import (
	"context"
	"sync"
)

// MockClient is a test double for ClientInterface. It records every call and
// replies from a fixed queue, an error, or a function.
type MockClient struct {
	mu sync.Mutex

	// GenerateFn, when set, handles calls directly.
	GenerateFn func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Responses are returned in order; the last one repeats.
	Responses []string
	// Err, when set, is returned for every call.
	Err error

	calls []MockCall
}

// MockCall captures the arguments of one Generate invocation.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
}

// NewMockClient creates a mock that always returns response.
func NewMockClient(response string) *MockClient {
	return &MockClient{Responses: []string{response}}
}

// Generate implements ClientInterface.
func (m *MockClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	n := len(m.calls)
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, systemPrompt, userPrompt)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	idx := n - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// CallCount returns how many times Generate was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded invocations.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}
