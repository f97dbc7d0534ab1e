package llm

import (
	"context"
	"fmt"
	"strings"
)

// DeterministicProvider is the secondary reasoning backend. It proposes no
// tool calls and produces a short, stable acknowledgment derived from the
// last user message, so a turn whose primary provider failed before any side
// effect still terminates with useful text.
type DeterministicProvider struct{}

// NewDeterministicProvider creates the fallback provider.
func NewDeterministicProvider() *DeterministicProvider {
	return &DeterministicProvider{}
}

// Name returns the provider identifier.
func (p *DeterministicProvider) Name() string {
	return "deterministic"
}

// Generate returns a canned acknowledgment of the last user message.
func (p *DeterministicProvider) Generate(_ context.Context, req *Request) (*Response, error) {
	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = req.Messages[i].Content
			break
		}
	}

	content := "I noted your message and will follow up with a full answer shortly."
	if lastUser != "" {
		content = fmt.Sprintf("I noted your message (%s) and will follow up with a full answer shortly.",
			truncate(lastUser, 80))
	}

	return &Response{
		Content:      content,
		FinishReason: "stop",
		Model:        "deterministic-v1",
	}, nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
