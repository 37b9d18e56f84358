package dialogue

import (
	"context"
	"strings"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

// ScriptedHandler drives a playbook without an inference backend: every scene
// prompt is spoken verbatim and navigation happens through the runner's DTMF
// bindings. It is the handler for playbooks whose front matter has no llm
// section.
type ScriptedHandler struct {
	pb    *playbook.Playbook
	vars  map[string]string
	scene *playbook.Scene
}

func NewScriptedHandler(pb *playbook.Playbook, vars map[string]string) *ScriptedHandler {
	return &ScriptedHandler{pb: pb, vars: vars, scene: pb.EntryScene()}
}

func (h *ScriptedHandler) OnStart(ctx context.Context) ([]types.Command, error) {
	var commands []types.Command
	if greeting := h.pb.Config.Greeting; greeting != "" {
		commands = append(commands, types.Speak(Render(greeting, h.vars)))
	}
	commands = append(commands, h.scenePrompt()...)
	if len(commands) == 0 {
		commands = append(commands, types.HangupCall())
	}
	return commands, nil
}

func (h *ScriptedHandler) OnEvent(ctx context.Context, ev types.SessionEvent) ([]types.Command, error) {
	switch ev.Kind {
	case types.EventSceneEntered:
		if scene, ok := h.pb.Scene(ev.SceneID); ok {
			h.scene = scene
			return h.scenePrompt(), nil
		}
		return nil, nil

	case types.EventSilence:
		// Re-read the menu; a scripted flow has nothing else to offer.
		return h.scenePrompt(), nil

	case types.EventCollectionResult:
		if !ev.Success {
			return h.scenePrompt(), nil
		}
		return nil, nil

	case types.EventFinalTranscript:
		if strings.TrimSpace(ev.Text) == "" {
			return nil, nil
		}
		return []types.Command{types.Speak("Please use the keypad to make a selection.")}, nil

	default:
		return nil, nil
	}
}

func (h *ScriptedHandler) scenePrompt() []types.Command {
	if h.scene == nil || h.scene.Prompt == "" {
		return nil
	}
	return []types.Command{types.Speak(Render(h.scene.Prompt, h.vars))}
}
