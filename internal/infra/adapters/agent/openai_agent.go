package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"agent-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.CodingAgent = (*OpenAIAgent)(nil)

// OpenAIAgent talks to the Chat Completions API through the official SDK.
type OpenAIAgent struct {
	client       openai.Client
	defaultModel string
}

func NewOpenAIAgent(apiKey, baseURL, defaultModel string) (*OpenAIAgent, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4.1"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAgent{
		client:       openai.NewClient(opts...),
		defaultModel: defaultModel,
	}, nil
}

func (o *OpenAIAgent) Name() string { return "openai" }

func (o *OpenAIAgent) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	// No server-side counting endpoint; tiktoken matches the billing counter.
	return estimateTokens(modelOrDefault(model, o.defaultModel), messages), nil
}

func (o *OpenAIAgent) Complete(ctx context.Context, model string, messages []adapter.Message) (*adapter.CompletionResult, error) {
	model = modelOrDefault(model, o.defaultModel)
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: no choices returned")
	}
	return &adapter.CompletionResult{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: adapter.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
