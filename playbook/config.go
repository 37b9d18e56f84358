package playbook

import (
	"strings"
	"time"
)

// LLMConfig selects and tunes the inference provider behind the dialogue
// handler. The base prompt comes from the playbook body, not from here.
type LLMConfig struct {
	Provider   string `yaml:"provider,omitempty"`
	Model      string `yaml:"model,omitempty"`
	BaseURL    string `yaml:"baseUrl,omitempty"`
	APIKey     string `yaml:"apiKey,omitempty"`
	Greeting   string `yaml:"greeting,omitempty"`
	Streaming  bool   `yaml:"streaming,omitempty"`
	MaxHistory int    `yaml:"maxHistory,omitempty"`
	Apology    string `yaml:"apology,omitempty"`
}

type InterruptionStrategy string

const (
	InterruptNone    InterruptionStrategy = "none"
	InterruptVADOnly InterruptionStrategy = "vad-only"
	InterruptASROnly InterruptionStrategy = "asr-only"
	InterruptBoth    InterruptionStrategy = "both"
)

type InterruptionConfig struct {
	Strategy         InterruptionStrategy `yaml:"strategy,omitempty"`
	MinSpeechMs      int                  `yaml:"minSpeechMs,omitempty"`
	FillerWordFilter bool                 `yaml:"fillerWordFilter,omitempty"`
}

func (c InterruptionConfig) MinSpeech() time.Duration {
	return time.Duration(c.MinSpeechMs) * time.Millisecond
}

type FollowupConfig struct {
	TimeoutMs int `yaml:"timeoutMs,omitempty"`
	Max       int `yaml:"max,omitempty"`
}

func (c FollowupConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type RecorderConfig struct {
	FileTemplate string `yaml:"fileTemplate,omitempty"`
}

type AmbianceConfig struct {
	Path            string  `yaml:"path,omitempty"`
	DuckLevel       float64 `yaml:"duckLevel,omitempty"`
	NormalLevel     float64 `yaml:"normalLevel,omitempty"`
	TransitionSpeed float64 `yaml:"transitionSpeed,omitempty"`
}

type PosthookConfig struct {
	URL            string `yaml:"url,omitempty"`
	Summary        string `yaml:"summary,omitempty"`
	IncludeHistory bool   `yaml:"includeHistory,omitempty"`
}

// Config is the global section of a playbook. Provider selections for
// speech recognition, synthesis and voice activity detection are opaque to
// the engine and passed through to the call surface untouched.
type Config struct {
	ASR map[string]string `yaml:"asr,omitempty"`
	TTS map[string]string `yaml:"tts,omitempty"`
	VAD map[string]string `yaml:"vad,omitempty"`

	Denoise      bool                          `yaml:"denoise,omitempty"`
	Greeting     string                        `yaml:"greeting,omitempty"`
	LLM          *LLMConfig                    `yaml:"llm,omitempty"`
	Interruption InterruptionConfig            `yaml:"interruption,omitempty"`
	Followup     FollowupConfig                `yaml:"followup,omitempty"`
	Recorder     *RecorderConfig               `yaml:"recorder,omitempty"`
	Ambiance     *AmbianceConfig               `yaml:"ambiance,omitempty"`
	Collectors   map[string]*CollectorTemplate `yaml:"dtmfCollectors,omitempty"`
	Scenes       []SceneConfig                 `yaml:"scenes,omitempty"`
	Posthook     *PosthookConfig               `yaml:"posthook,omitempty"`
}

// SceneConfig is the declarative form of a scene; bindings are written as
// action strings ("goto sales", "hangup", "transfer sip:op@pbx",
// "collect phone user_phone").
type SceneConfig struct {
	ID     string            `yaml:"id"`
	Play   string            `yaml:"play,omitempty"`
	Prompt string            `yaml:"prompt,omitempty"`
	DTMF   map[string]string `yaml:"dtmf,omitempty"`
}

type BindingAction int

const (
	BindGoto BindingAction = iota
	BindHangup
	BindTransfer
	BindCollect
)

// Binding maps one DTMF digit inside a scene to an action.
type Binding struct {
	Action  BindingAction
	Target  string // scene id, transfer target or collector name
	VarName string // collect only
}

func parseBinding(raw string) (Binding, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Binding{}, configErrorf("", "empty binding")
	}
	switch fields[0] {
	case "hangup":
		return Binding{Action: BindHangup}, nil
	case "goto":
		if len(fields) != 2 {
			return Binding{}, configErrorf("", "goto needs a scene id")
		}
		return Binding{Action: BindGoto, Target: fields[1]}, nil
	case "transfer":
		if len(fields) != 2 {
			return Binding{}, configErrorf("", "transfer needs a target")
		}
		return Binding{Action: BindTransfer, Target: fields[1]}, nil
	case "collect":
		if len(fields) != 3 {
			return Binding{}, configErrorf("", "collect needs a collector name and a variable name")
		}
		return Binding{Action: BindCollect, Target: fields[1], VarName: fields[2]}, nil
	default:
		return Binding{}, configErrorf("", "unknown binding action %q", fields[0])
	}
}
