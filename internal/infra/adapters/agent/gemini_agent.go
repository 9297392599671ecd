package agent

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"agent-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.CodingAgent = (*GeminiAgent)(nil)

// GeminiAgent drives the Gemini API through the official SDK.
type GeminiAgent struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

func NewGeminiAgent(ctx context.Context, apiKey, defaultModel string, maxOut int) (*GeminiAgent, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAgent{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAgent) Name() string { return "gemini" }

func (g *GeminiAgent) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(model, g.defaultModel), toGeminiHistory(messages), nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAgent) Complete(ctx context.Context, model string, messages []adapter.Message) (*adapter.CompletionResult, error) {
	if len(messages) == 0 {
		return nil, errors.New("gemini: no messages")
	}
	model = modelOrDefault(model, g.defaultModel)
	last := messages[len(messages)-1]
	if strings.ToLower(last.Role) != "user" {
		return nil, errors.New("gemini: last message must be from user")
	}

	var cfg *genai.GenerateContentConfig
	if g.maxOut > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(g.maxOut)}
	}
	chat, err := g.client.Chats.Create(ctx, model, cfg, toGeminiHistory(messages[:len(messages)-1]))
	if err != nil {
		return nil, err
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	if err != nil {
		return nil, err
	}

	out := &adapter.CompletionResult{Model: model}
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		out.Content = resp.Candidates[0].Content.Parts[0].Text
	}
	if resp != nil && resp.UsageMetadata != nil {
		out.Usage = adapter.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func toGeminiHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		case "system":
			// Gemini has no system role in history; fold it into the user turn.
			role = genai.RoleUser
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}
