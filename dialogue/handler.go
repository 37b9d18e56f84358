package dialogue

import (
	"context"

	"github.com/Reverse-Call-Center/voice-playbook/types"
)

// Handler is the brain behind one call: it turns session events into
// outbound commands. Implementations may block on external calls (model
// inference, tool results); each call runs its handler on its own goroutine
// so one slow brain never stalls another call.
type Handler interface {
	OnStart(ctx context.Context) ([]types.Command, error)
	OnEvent(ctx context.Context, ev types.SessionEvent) ([]types.Command, error)
}

// CommandSink receives commands flushed before a handler turn finishes, used
// by streaming handlers to speak sentence-by-sentence. Sinks run on the
// caller's goroutine, so command ordering is preserved.
type CommandSink func(types.Command)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
