package llm

import (
	"context"
	"strings"
	"sync"
)

// MockProvider returns canned responses. Used by tests and when
// SMITH_USE_MOCK_LLM is set.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	next      int

	// Requests records every request seen, for test assertions.
	Requests []GenerateRequest
}

// NewMockProvider builds a mock that cycles through the given responses.
// With no responses configured it echoes a fixed acknowledgement.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) nextResponse() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.responses) == 0 {
		return "mock response"
	}
	r := p.responses[p.next%len(p.responses)]
	p.next++
	return r
}

// Generate returns the next canned response.
func (p *MockProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, networkError("mock", err)
	}
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	p.mu.Unlock()

	return &GenerateResponse{Text: p.nextResponse()}, nil
}

// GenerateStreaming emits the canned response word by word.
func (p *MockProvider) GenerateStreaming(ctx context.Context, req GenerateRequest, onEvent EventFunc) (*GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, networkError("mock", err)
	}
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	p.mu.Unlock()

	text := p.nextResponse()
	for _, word := range strings.SplitAfter(text, " ") {
		onEvent(StreamEvent{Kind: EventTextDelta, Text: word})
	}
	onEvent(StreamEvent{Kind: EventFinished})
	return &GenerateResponse{Text: text}, nil
}
