package agent

import (
	"github.com/pkoukk/tiktoken-go"

	"agent-orchestrator/internal/domain/ports/adapter"
)

// estimateTokens counts prompt tokens with tiktoken. When neither the model
// encoding nor cl100k_base can be loaded (offline hosts fetching an encoding
// for the first time) it falls back to the rough four-bytes-per-token rule.
func estimateTokens(model string, messages []adapter.Message) int {
	var enc *tiktoken.Tiktoken
	if model != "" {
		enc, _ = tiktoken.EncodingForModel(model)
	}
	if enc == nil {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	}
	total := 0
	for _, m := range messages {
		if enc != nil {
			total += len(enc.Encode(m.Content, nil, nil))
		} else {
			total += len(m.Content) / 4
		}
		// per-message framing overhead
		total += 4
	}
	return total
}
