// Package llm abstracts the reasoning provider behind a small Provider
// interface and drives the per-turn reasoning-and-tool loop through the
// Adapter, including the fallback-to-deterministic-provider contract.
package llm

import (
	"context"
	"errors"
	"time"

	openworkotel "github.com/moshesimon/OpenWork-sub000/internal/otel"
)

var tracer = openworkotel.Tracer("github.com/moshesimon/OpenWork-sub000/internal/llm")

// TimeoutProviderCall bounds a single provider call, independent of the
// turn-level wall-clock budget.
const TimeoutProviderCall = 60 * time.Second

// Domain errors.
var (
	ErrNoChoices = errors.New("provider returned no choices")
	ErrNoText    = errors.New("provider returned no final text")
)

// Provider is the interface all reasoning providers must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "deterministic").
	Name() string
	// Generate sends one completion request and returns the response, which
	// may contain tool calls for the harness to execute.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents one provider generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []Tool
}

// Message represents a chat message. ToolCallID is set on role "tool"
// messages carrying a tool result; ToolCalls on assistant messages that
// requested tools.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// Tool is a tool definition passed to the provider.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Response represents one provider generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
	ToolCalls    []ToolCall
}

// ToolCall is a request from the provider to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}
