package llm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshesimon/OpenWork-sub000/internal/llm"
	"github.com/moshesimon/OpenWork-sub000/internal/testutil"
)

// recordingExecutor implements llm.ToolExecutor without a real harness.
type recordingExecutor struct {
	calls []llm.ToolCall
	err   error
}

func (e *recordingExecutor) Execute(_ context.Context, call llm.ToolCall) (string, error) {
	e.calls = append(e.calls, call)
	if e.err != nil {
		return "", e.err
	}
	return fmt.Sprintf(`{"ok":true,"message":"did %s"}`, call.Name), nil
}

func (e *recordingExecutor) ExecutedCount() int { return len(e.calls) }

// recordingSink implements llm.EventSink.
type recordingSink struct {
	events   []string
	payloads []map[string]interface{}
}

func (s *recordingSink) Append(_ context.Context, eventType string, payload map[string]interface{}) {
	s.events = append(s.events, eventType)
	s.payloads = append(s.payloads, payload)
}

func toolResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{FinishReason: "tool_calls", ToolCalls: calls}
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: text, FinishReason: "stop"}
}

func TestRunTurn_PlainText(t *testing.T) {
	primary := &testutil.ToolCallMockProvider{
		Responses: []*llm.Response{textResponse("all done")},
	}
	adapter := llm.NewAdapter(primary, nil, "gpt-4o-mini", 12)
	exec := &recordingExecutor{}

	res, err := adapter.RunTurn(context.Background(), &llm.TurnInput{
		SystemPrompt: "be helpful",
		UserMessage:  "hi",
	}, exec, nil)
	require.NoError(t, err)
	assert.Equal(t, "all done", res.Text)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, 1, res.Steps)
	assert.False(t, res.FallbackUsed)
	assert.Empty(t, exec.calls)
}

func TestRunTurn_ToolLoopExecutesInOrder(t *testing.T) {
	primary := &testutil.ToolCallMockProvider{
		Responses: []*llm.Response{
			toolResponse(
				llm.ToolCall{ID: "c1", Name: "list_tasks"},
				llm.ToolCall{ID: "c2", Name: "create_task", Arguments: map[string]interface{}{"title": "x"}},
			),
			toolResponse(llm.ToolCall{ID: "c3", Name: "send_message"}),
			textResponse("done after tools"),
		},
	}
	adapter := llm.NewAdapter(primary, nil, "gpt-4o-mini", 12)
	exec := &recordingExecutor{}

	res, err := adapter.RunTurn(context.Background(), &llm.TurnInput{UserMessage: "go"}, exec, nil)
	require.NoError(t, err)
	assert.Equal(t, "done after tools", res.Text)
	assert.Equal(t, 3, res.Steps)

	require.Len(t, exec.calls, 3)
	assert.Equal(t, "list_tasks", exec.calls[0].Name)
	assert.Equal(t, "create_task", exec.calls[1].Name)
	assert.Equal(t, "send_message", exec.calls[2].Name)

	// The tool results must be fed back as role "tool" messages keyed by
	// the originating call id.
	last := primary.ReceivedMessages[2]
	var toolMsgs []llm.Message
	for _, m := range last {
		if m.Role == "tool" {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 3)
	assert.Equal(t, "c1", toolMsgs[0].ToolCallID)
	assert.Equal(t, "c3", toolMsgs[2].ToolCallID)
}

func TestRunTurn_FallbackWhenNoToolsExecuted(t *testing.T) {
	primary := &testutil.ToolCallMockProvider{
		ErrOnCall: 1,
		Err:       errors.New("rate limited"),
	}
	fallback := &testutil.MockProvider{ProviderName: "deterministic", Content: "canned reply"}
	adapter := llm.NewAdapter(primary, fallback, "gpt-4o-mini", 12)
	exec := &recordingExecutor{}
	sink := &recordingSink{}

	res, err := adapter.RunTurn(context.Background(), &llm.TurnInput{UserMessage: "hi"}, exec, sink)
	require.NoError(t, err)
	assert.Equal(t, "canned reply", res.Text)
	assert.Equal(t, "deterministic", res.Provider)
	assert.True(t, res.FallbackUsed)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "provider_fallback", sink.events[0])
	assert.Equal(t, "openai", sink.payloads[0]["primary"])
	assert.Equal(t, "rate limited", sink.payloads[0]["error"])
}

func TestRunTurn_NoFallbackAfterToolsExecuted(t *testing.T) {
	primary := &testutil.ToolCallMockProvider{
		Responses: []*llm.Response{
			toolResponse(llm.ToolCall{ID: "c1", Name: "send_message"}),
		},
		ErrOnCall: 2,
		Err:       errors.New("upstream 500"),
	}
	fallback := &testutil.MockProvider{ProviderName: "deterministic", Content: "should not appear"}
	adapter := llm.NewAdapter(primary, fallback, "gpt-4o-mini", 12)
	exec := &recordingExecutor{}
	sink := &recordingSink{}

	res, err := adapter.RunTurn(context.Background(), &llm.TurnInput{UserMessage: "hi"}, exec, sink)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "after 1 executed tools")
	assert.Contains(t, err.Error(), "upstream 500")
	assert.Empty(t, sink.events)
}

func TestRunTurn_FallbackErrorPropagates(t *testing.T) {
	primary := &testutil.ToolCallMockProvider{ErrOnCall: 1, Err: errors.New("primary down")}
	fallback := &testutil.MockProvider{ProviderName: "deterministic", Err: errors.New("also down")}
	adapter := llm.NewAdapter(primary, fallback, "gpt-4o-mini", 12)

	_, err := adapter.RunTurn(context.Background(), &llm.TurnInput{UserMessage: "hi"}, &recordingExecutor{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback provider")
}

func TestRunTurn_NilFallbackPropagates(t *testing.T) {
	primary := &testutil.ToolCallMockProvider{ErrOnCall: 1, Err: errors.New("boom")}
	adapter := llm.NewAdapter(primary, nil, "gpt-4o-mini", 12)

	_, err := adapter.RunTurn(context.Background(), &llm.TurnInput{UserMessage: "hi"}, &recordingExecutor{}, nil)
	require.Error(t, err)
}

func TestRunTurn_StepCap(t *testing.T) {
	// The provider always asks for another tool; the loop must stop at the
	// cap and return an empty-text result instead of spinning.
	primary := &testutil.ToolCallMockProvider{
		Responses: []*llm.Response{
			toolResponse(llm.ToolCall{ID: "c", Name: "list_tasks"}),
		},
	}
	adapter := llm.NewAdapter(primary, nil, "gpt-4o-mini", 3)
	exec := &recordingExecutor{}

	res, err := adapter.RunTurn(context.Background(), &llm.TurnInput{UserMessage: "hi"}, exec, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, 3, primary.CallCount)
	assert.Len(t, exec.calls, 3)
}

func TestRunTurn_ToolExecutorErrorAborts(t *testing.T) {
	primary := &testutil.ToolCallMockProvider{
		Responses: []*llm.Response{
			toolResponse(llm.ToolCall{ID: "c1", Name: "create_briefing"}),
		},
	}
	adapter := llm.NewAdapter(primary, nil, "gpt-4o-mini", 12)
	exec := &recordingExecutor{err: errors.New("db locked")}

	_, err := adapter.RunTurn(context.Background(), &llm.TurnInput{UserMessage: "hi"}, exec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executing tool create_briefing")
}

func TestAssembleMessages_SystemContextAndHistory(t *testing.T) {
	primary := &testutil.ToolCallMockProvider{
		Responses: []*llm.Response{textResponse("ok")},
	}
	adapter := llm.NewAdapter(primary, nil, "gpt-4o-mini", 12)

	_, err := adapter.RunTurn(context.Background(), &llm.TurnInput{
		SystemPrompt: "you are the assistant",
		Context:      "## People\n- alice",
		History: []llm.Message{
			{Role: "user", Content: "earlier"},
			{Role: "assistant", Content: "noted"},
		},
		UserMessage: "now",
	}, &recordingExecutor{}, nil)
	require.NoError(t, err)

	msgs := primary.ReceivedMessages[0]
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "you are the assistant")
	assert.Contains(t, msgs[0].Content, "## People")
	assert.Equal(t, "earlier", msgs[1].Content)
	assert.Equal(t, "now", msgs[3].Content)
}
