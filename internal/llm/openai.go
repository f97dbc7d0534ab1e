package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	openworkotel "github.com/moshesimon/OpenWork-sub000/internal/otel"
)

// OpenAIProvider implements Provider against the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider pointing at a
// custom base URL (e.g. an httptest mock server). baseURL should be the
// scheme+host without path.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a chat completion request, mapping tool declarations out
// and tool calls back in.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(
			openworkotel.GenAISystem.String("openai"),
			openworkotel.GenAIRequestModel.String(req.Model),
			openworkotel.GenAIRequestTemperature.Float64(req.Temperature),
			openworkotel.GenAIRequestMaxTokens.Int(req.MaxTokens),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutProviderCall)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:       tc.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: string(args)},
			})
		}
		messages[i] = m
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	for _, t := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api call: %w", ErrNoChoices)
	}

	choice := resp.Choices[0]
	span.SetAttributes(
		openworkotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		openworkotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
		openworkotel.GenAIResponseFinishReason.String(string(choice.FinishReason)),
	)

	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			// Malformed arguments degrade to an empty map; the tool harness
			// reports the missing fields as a validation failure the model
			// can react to.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}
