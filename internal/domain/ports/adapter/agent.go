package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single model call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResult is assistant text plus the usage the provider reported.
type CompletionResult struct {
	Content string
	Model   string
	Usage   Usage
}

// CodingAgent is the port for LLM completions driving job stages.
type CodingAgent interface {
	Name() string

	// CountTokens must return prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	// Complete returns assistant text + usage as reported by the provider.
	Complete(ctx context.Context, model string, messages []Message) (*CompletionResult, error)
}
