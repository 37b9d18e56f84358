package dialogue

import (
	"context"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
)

// StreamChunk is one piece of streamed model output.
type StreamChunk struct {
	Content string
	Err     error
}

// Provider performs inference for the LLM-backed handler. Implementations
// must be safe for use from multiple calls' goroutines.
type Provider interface {
	Complete(ctx context.Context, cfg *playbook.LLMConfig, history []ChatMessage) (string, error)
	// Stream returns a channel that yields content chunks and closes when
	// the response is finished. A mid-stream error is delivered as the last
	// chunk.
	Stream(ctx context.Context, cfg *playbook.LLMConfig, history []ChatMessage) (<-chan StreamChunk, error)
}
