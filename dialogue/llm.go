package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

const (
	defaultMaxHistory    = 50
	defaultApology       = "I'm sorry, I'm having a little trouble right now. Could you say that again?"
	providerRetries      = 2
	providerRetryBackoff = 250 * time.Millisecond
)

// LLMHandler drives the conversation with an inference provider. It keeps a
// bounded history, renders the active scene's prompt through the session
// variables and interprets both inline action markers and structured JSON
// responses from the model.
//
// The handler shares the session's variable map with the runner; both run on
// the call's goroutine, so no locking is needed.
type LLMHandler struct {
	cfg      *playbook.LLMConfig
	pb       *playbook.Playbook
	provider Provider
	logger   *slog.Logger

	vars    map[string]string
	history []ChatMessage
	scene   *playbook.Scene
	sink    CommandSink
}

func NewLLMHandler(pb *playbook.Playbook, provider Provider, vars map[string]string, logger *slog.Logger) *LLMHandler {
	h := &LLMHandler{
		cfg:      pb.Config.LLM,
		pb:       pb,
		provider: provider,
		logger:   logger,
		vars:     vars,
		scene:    pb.EntryScene(),
	}
	h.history = []ChatMessage{{Role: "system", Content: h.systemPrompt()}}
	return h
}

// SetCommandSink enables streaming mode: text segments are flushed through
// the sink sentence-by-sentence instead of waiting for the full response.
func (h *LLMHandler) SetCommandSink(sink CommandSink) {
	h.sink = sink
}

func (h *LLMHandler) OnStart(ctx context.Context) ([]types.Command, error) {
	greeting := h.cfg.Greeting
	if greeting == "" {
		greeting = h.pb.Config.Greeting
	}
	if greeting != "" {
		rendered := Render(greeting, h.vars)
		h.push(ChatMessage{Role: "assistant", Content: rendered})
		return []types.Command{types.Speak(rendered)}, nil
	}
	return h.generate(ctx)
}

func (h *LLMHandler) OnEvent(ctx context.Context, ev types.SessionEvent) ([]types.Command, error) {
	switch ev.Kind {
	case types.EventFinalTranscript:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return nil, nil
		}
		h.push(ChatMessage{Role: "user", Content: text})
		return h.generate(ctx)

	case types.EventSilence:
		h.push(ChatMessage{Role: "system", Content: "The caller has been silent. Gently re-engage them."})
		return h.generate(ctx)

	case types.EventToolResult:
		if ev.Err != "" {
			h.push(ChatMessage{Role: "system", Content: fmt.Sprintf("Tool %s failed: %s", ev.Tool, ev.Err)})
		} else {
			h.push(ChatMessage{Role: "system", Content: fmt.Sprintf("Tool %s result: %s", ev.Tool, ev.Payload)})
		}
		return h.generate(ctx)

	case types.EventSceneEntered:
		if scene, ok := h.pb.Scene(ev.SceneID); ok {
			h.scene = scene
			h.history[0].Content = h.systemPrompt()
			h.push(ChatMessage{Role: "system", Content: fmt.Sprintf("Entered scene %q. Open it according to the scene instructions.", ev.SceneID)})
			return h.generate(ctx)
		}
		return nil, nil

	case types.EventSceneNotFound:
		h.push(ChatMessage{Role: "system", Content: fmt.Sprintf(
			"Scene %q does not exist; the current scene is unchanged. Valid scenes: %s.",
			ev.SceneID, strings.Join(h.pb.SceneIDs(), ", "))})
		return h.generate(ctx)

	case types.EventCollectionResult:
		if ev.Success {
			h.push(ChatMessage{Role: "system", Content: fmt.Sprintf(
				"DTMF collection completed: %s = %q. Continue the conversation using this value.", ev.VarName, ev.Value)})
		} else {
			h.push(ChatMessage{Role: "system", Content: fmt.Sprintf(
				"DTMF collection failed for %s: %s. Decide how to proceed.", ev.VarName, ev.Reason)})
		}
		return h.generate(ctx)

	default:
		return nil, nil
	}
}

func (h *LLMHandler) push(msg ChatMessage) {
	h.history = append(h.history, msg)
	max := h.cfg.MaxHistory
	if max <= 0 {
		max = defaultMaxHistory
	}
	if len(h.history) > max+1 {
		// Keep the system prompt, drop the oldest turns.
		trimmed := append([]ChatMessage{h.history[0]}, h.history[len(h.history)-max:]...)
		h.history = trimmed
	}
}

func (h *LLMHandler) systemPrompt() string {
	var b strings.Builder
	b.WriteString(h.pb.BasePrompt)

	if instructions := collectorInstructions(h.pb.Config.Collectors); instructions != "" {
		b.WriteString("\n\n")
		b.WriteString(instructions)
	}
	if h.scene != nil && h.scene.Prompt != "" {
		b.WriteString("\n\n### Current scene: ")
		b.WriteString(h.scene.ID)
		b.WriteString("\n")
		b.WriteString(Render(h.scene.Prompt, h.vars))
	}
	return b.String()
}

func collectorInstructions(collectors map[string]*playbook.CollectorTemplate) string {
	if len(collectors) == 0 {
		return ""
	}
	names := make([]string, 0, len(collectors))
	for name := range collectors {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("### DTMF Digit Collection\n")
	b.WriteString("To gather digits from the keypad, use the DTMF digit collection command:\n")
	b.WriteString(`<collect type="TYPE" var="VAR_NAME" prompt="PROMPT_TEXT" />` + "\n")
	b.WriteString("Available collectors:\n")
	for _, name := range names {
		tmpl := collectors[name]
		b.WriteString(fmt.Sprintf("- `%s`: %s (", name, tmpl.Description))
		if tmpl.MinDigits == tmpl.MaxDigits && tmpl.MaxDigits > 0 {
			b.WriteString(fmt.Sprintf("%d digits", tmpl.MaxDigits))
		} else {
			b.WriteString(fmt.Sprintf("%d-%d digits", tmpl.MinDigits, tmpl.MaxDigits))
		}
		if tmpl.FinishKey != "" {
			b.WriteString(fmt.Sprintf(", press %s to finish", tmpl.FinishKey))
		}
		b.WriteString(")\n")
	}
	b.WriteString("When collection completes, the value is available as {{ var_name }} and you will be told.\n")
	return b.String()
}

func (h *LLMHandler) generate(ctx context.Context) ([]types.Command, error) {
	if h.cfg.Streaming && h.sink != nil {
		return h.generateStreaming(ctx)
	}
	return h.generateOnce(ctx)
}

func (h *LLMHandler) generateOnce(ctx context.Context) ([]types.Command, error) {
	raw, err := h.completeWithRetry(ctx)
	if err != nil {
		h.logger.Error("inference failed, speaking apology", "error", err)
		return h.apology(), nil
	}
	return h.interpret(raw), nil
}

// interpret turns a full model response into ordered commands.
func (h *LLMHandler) interpret(raw string) []types.Command {
	text := raw
	var overrides *StructuredResponse
	var commands []types.Command

	if structured, ok := ParseStructured(raw); ok {
		overrides = structured
		text = structured.Text
		for _, tool := range structured.Tools {
			commands = append(commands, types.ToolCall(tool.Request()))
		}
	}

	var scanner TagScanner
	items := scanner.Feed(text)
	items = append(items, scanner.Flush()...)

	var spoken []string
	var ordered []types.Command
	var pendingText []string
	flushText := func() {
		if len(pendingText) == 0 {
			return
		}
		joined := strings.Join(pendingText, " ")
		pendingText = nil
		spoken = append(spoken, joined)
		ordered = append(ordered, h.speakCommand(joined, false, overrides))
	}
	for _, item := range items {
		switch item.Kind {
		case ItemText:
			pendingText = append(pendingText, item.Text)
		case ItemTag:
			flushText()
			if cmd, ok := TagCommand(item.Tag); ok {
				ordered = append(ordered, cmd)
			} else {
				h.push(ChatMessage{Role: "system", Content: fmt.Sprintf("Ignored malformed action marker <%s>.", item.Tag.Name)})
			}
		}
	}
	flushText()

	if len(spoken) > 0 {
		h.push(ChatMessage{Role: "assistant", Content: strings.Join(spoken, " ")})
	}
	return append(ordered, commands...)
}

func (h *LLMHandler) generateStreaming(ctx context.Context) ([]types.Command, error) {
	stream, err := h.streamWithRetry(ctx)
	if err != nil {
		h.logger.Error("inference failed, speaking apology", "error", err)
		return h.apology(), nil
	}

	var scanner TagScanner
	var spoken []string
	var all strings.Builder
	probing := true
	terminal := false

	emit := func(items []Item) {
		for _, item := range items {
			if terminal {
				return
			}
			switch item.Kind {
			case ItemText:
				spoken = append(spoken, item.Text)
				h.sink(h.speakCommand(item.Text, true, nil))
			case ItemTag:
				cmd, ok := TagCommand(item.Tag)
				if !ok {
					h.push(ChatMessage{Role: "system", Content: fmt.Sprintf("Ignored malformed action marker <%s>.", item.Tag.Name)})
					continue
				}
				h.sink(cmd)
				if cmd.Kind == types.CmdHangup || cmd.Kind == types.CmdTransfer {
					terminal = true
				}
			}
		}
	}

	for chunk := range stream {
		if chunk.Err != nil {
			h.logger.Warn("stream interrupted", "error", chunk.Err)
			if all.Len() == 0 {
				return h.apology(), nil
			}
			break
		}
		all.WriteString(chunk.Content)

		if probing {
			// A response that opens as JSON is a structured reply; buffer
			// it whole instead of speaking braces aloud.
			head := strings.TrimSpace(all.String())
			switch {
			case head == "":
				continue
			case strings.HasPrefix(head, "{"), strings.HasPrefix(head, "["), strings.HasPrefix(head, "`"):
				continue
			default:
				probing = false
				emit(scanner.Feed(all.String()))
				continue
			}
		}

		emit(scanner.Feed(chunk.Content))
		if terminal {
			break
		}
	}

	if probing {
		// Never left the structured-probe path: interpret the whole buffer.
		return h.interpret(all.String()), nil
	}

	emit(scanner.Flush())
	if len(spoken) > 0 {
		h.push(ChatMessage{Role: "assistant", Content: strings.Join(spoken, " ")})
	}
	return nil, nil
}

func (h *LLMHandler) speakCommand(text string, streaming bool, overrides *StructuredResponse) types.Command {
	cmd := types.Speak(text)
	cmd.Streaming = streaming
	if overrides != nil {
		if overrides.WaitInputTimeout > 0 {
			cmd.WaitInputTimeout = time.Duration(overrides.WaitInputTimeout) * time.Millisecond
		}
		cmd.AllowInterrupt = overrides.AllowInterrupt
	}
	return cmd
}

func (h *LLMHandler) apology() []types.Command {
	text := h.cfg.Apology
	if text == "" {
		text = defaultApology
	}
	return []types.Command{types.Speak(text)}
}

func (h *LLMHandler) completeWithRetry(ctx context.Context) (string, error) {
	delay := providerRetryBackoff
	var lastErr error
	for attempt := 0; attempt <= providerRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		raw, err := h.provider.Complete(ctx, h.cfg, h.history)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		h.logger.Warn("inference attempt failed", "attempt", attempt+1, "error", err)
	}
	return "", lastErr
}

func (h *LLMHandler) streamWithRetry(ctx context.Context) (<-chan StreamChunk, error) {
	delay := providerRetryBackoff
	var lastErr error
	for attempt := 0; attempt <= providerRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		stream, err := h.provider.Stream(ctx, h.cfg, h.history)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		h.logger.Warn("inference attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}
