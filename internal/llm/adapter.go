package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ToolExecutor runs tool calls on behalf of the provider. Implemented by the
// tool harness; the adapter never effects anything itself.
type ToolExecutor interface {
	// Execute runs one tool call and returns the serialized result the
	// provider sees. Validation failures come back as ordinary results, not
	// errors; an error from Execute is an engine fault and aborts the turn.
	Execute(ctx context.Context, call ToolCall) (string, error)
	// ExecutedCount reports how many tool calls have run so far this turn.
	ExecutedCount() int
}

// EventSink receives observability events bound to the current task.
type EventSink interface {
	Append(ctx context.Context, eventType string, payload map[string]interface{})
}

// TurnInput is the assembled input for one reasoning turn.
type TurnInput struct {
	SystemPrompt string
	Context      string // rendered workspace context snapshot
	History      []Message
	UserMessage  string
	Tools        []Tool
}

// TurnResult is the outcome of a completed reasoning turn.
type TurnResult struct {
	Text         string
	Provider     string
	Steps        int
	FallbackUsed bool
}

// Adapter drives the reasoning loop against the primary provider, executing
// requested tools sequentially through the harness, and applies the fallback
// contract: a primary failure with ZERO executed tools transparently retries
// the same input against the deterministic secondary provider; a failure
// after any tool has executed propagates, because partial side effects have
// already been committed and a silent retry could duplicate them.
type Adapter struct {
	primary  Provider
	fallback Provider
	model    string
	maxSteps int
}

// NewAdapter creates a provider adapter. fallback may be nil to disable the
// fallback path (primary errors then always propagate).
func NewAdapter(primary, fallback Provider, model string, maxSteps int) *Adapter {
	if maxSteps <= 0 {
		maxSteps = 12
	}
	return &Adapter{primary: primary, fallback: fallback, model: model, maxSteps: maxSteps}
}

// RunTurn executes the bounded reasoning loop. Tool calls run in the order
// the provider requests them, sequentially; the harness is not reentrant.
func (a *Adapter) RunTurn(ctx context.Context, in *TurnInput, exec ToolExecutor, events EventSink) (*TurnResult, error) {
	ctx, span := tracer.Start(ctx, "llm.run_turn",
		trace.WithAttributes(
			attribute.String("gen_ai.system", a.primary.Name()),
			attribute.String("gen_ai.request.model", a.model),
		))
	defer span.End()

	messages := a.assembleMessages(in)

	for step := 0; step < a.maxSteps; step++ {
		resp, err := a.primary.Generate(ctx, &Request{
			Model:       a.model,
			Messages:    messages,
			Temperature: 0.3,
			MaxTokens:   2000,
			Tools:       in.Tools,
		})
		if err != nil {
			if exec.ExecutedCount() == 0 && a.fallback != nil {
				return a.runFallback(ctx, in, err, events)
			}
			span.RecordError(err)
			return nil, fmt.Errorf("primary provider after %d executed tools: %w", exec.ExecutedCount(), err)
		}

		if len(resp.ToolCalls) == 0 {
			span.SetAttributes(attribute.Int("llm.steps", step+1))
			return &TurnResult{Text: resp.Content, Provider: a.primary.Name(), Steps: step + 1}, nil
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result, execErr := exec.Execute(ctx, call)
			if execErr != nil {
				span.RecordError(execErr)
				return nil, fmt.Errorf("executing tool %s: %w", call.Name, execErr)
			}
			messages = append(messages, Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	// Step cap reached without a final text; the orchestrator falls back to
	// the last tool message for the reply.
	span.SetAttributes(attribute.Int("llm.steps", a.maxSteps))
	return &TurnResult{Provider: a.primary.Name(), Steps: a.maxSteps}, nil
}

// runFallback retries the original turn input against the secondary
// deterministic provider and logs a provider_fallback event with the
// original error.
func (a *Adapter) runFallback(ctx context.Context, in *TurnInput, cause error, events EventSink) (*TurnResult, error) {
	log.Warn().Err(cause).
		Str("primary", a.primary.Name()).
		Str("fallback", a.fallback.Name()).
		Msg("provider_fallback")
	if events != nil {
		events.Append(ctx, "provider_fallback", map[string]interface{}{
			"primary":  a.primary.Name(),
			"fallback": a.fallback.Name(),
			"error":    cause.Error(),
		})
	}

	resp, err := a.fallback.Generate(ctx, &Request{
		Model:    a.model,
		Messages: a.assembleMessages(in),
	})
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return &TurnResult{
		Text:         resp.Content,
		Provider:     a.fallback.Name(),
		Steps:        1,
		FallbackUsed: true,
	}, nil
}

func (a *Adapter) assembleMessages(in *TurnInput) []Message {
	system := in.SystemPrompt
	if in.Context != "" {
		system += "\n\n" + in.Context
	}
	messages := make([]Message, 0, len(in.History)+2)
	messages = append(messages, Message{Role: "system", Content: system})
	messages = append(messages, in.History...)
	if in.UserMessage != "" {
		messages = append(messages, Message{Role: "user", Content: in.UserMessage})
	}
	return messages
}
