// Package testutil provides shared test helpers and mocks for OpenWork tests.
package testutil

import (
	"context"
	"sync"

	"github.com/moshesimon/OpenWork-sub000/internal/llm"
)

// MockProvider implements llm.Provider for tests without live API calls.
// When Content is empty, Generate returns "mock response from " + ProviderName.
// Set Err to simulate provider failures.
type MockProvider struct {
	ProviderName string
	Content      string
	Err          error
}

// Name returns the provider identifier (implements llm.Provider).
func (m *MockProvider) Name() string { return m.ProviderName }

// Generate returns a canned response or the configured error.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Content
	if content == "" {
		content = "mock response from " + m.ProviderName
	}
	return &llm.Response{
		Content:      content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// ToolCallMockProvider implements llm.Provider for testing the reasoning
// loop. It returns a configurable sequence of responses (tool calls then a
// final answer) and records call count and received messages for assertions.
// Set ErrOnCall (1-based) and Err to fail Generate on that call.
type ToolCallMockProvider struct {
	mu               sync.Mutex
	Responses        []*llm.Response // call N gets Responses[N], or the last when N >= len
	CallCount        int
	ReceivedMessages [][]llm.Message
	ErrOnCall        int // 1-based; 0 = never
	Err              error
}

// Name returns "openai" so the turn loop treats this as the primary.
func (p *ToolCallMockProvider) Name() string { return "openai" }

// Generate returns the next response in the sequence and records the request.
func (p *ToolCallMockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.CallCount++
	idx := p.CallCount - 1
	// Copy messages so the caller cannot mutate them after the fact.
	msgCopy := make([]llm.Message, len(req.Messages))
	copy(msgCopy, req.Messages)
	p.ReceivedMessages = append(p.ReceivedMessages, msgCopy)
	resps := p.Responses
	callCount := p.CallCount
	errOnCall := p.ErrOnCall
	errReturn := p.Err
	p.mu.Unlock()

	if errOnCall > 0 && callCount == errOnCall && errReturn != nil {
		return nil, errReturn
	}
	if len(resps) == 0 {
		return &llm.Response{
			Content:      "no responses configured",
			FinishReason: "stop",
			Model:        req.Model,
		}, nil
	}
	if idx >= len(resps) {
		idx = len(resps) - 1
	}
	out := resps[idx]
	r := &llm.Response{
		Content:      out.Content,
		FinishReason: out.FinishReason,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		Model:        out.Model,
	}
	if len(out.ToolCalls) > 0 {
		r.ToolCalls = make([]llm.ToolCall, len(out.ToolCalls))
		copy(r.ToolCalls, out.ToolCalls)
	}
	return r, nil
}
