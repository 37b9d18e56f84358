package interrupt

import (
	"strings"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

// fillerWords are discarded before judging whether a partial transcript is a
// real interruption attempt.
var fillerWords = map[string]struct{}{
	"uh": {}, "um": {}, "er": {}, "erm": {}, "hmm": {}, "mhm": {},
	"嗯": {}, "啊": {}, "呃": {}, "哦": {},
}

// Controller decides whether caller speech should cancel in-progress
// outbound speech. It is owned by one call's runner and tracks only the
// voice-activity window needed for the sustained-duration check.
type Controller struct {
	cfg playbook.InterruptionConfig

	voiceActive bool
	voiceStart  time.Time
}

func NewController(cfg playbook.InterruptionConfig) *Controller {
	if cfg.Strategy == "" {
		cfg.Strategy = playbook.InterruptVADOnly
	}
	return &Controller{cfg: cfg}
}

// Observe tracks voice-activity transitions. Call for every event, whether
// or not a decision is needed.
func (c *Controller) Observe(ev types.SessionEvent) {
	switch ev.Kind {
	case types.EventVoiceStart:
		if !c.voiceActive {
			c.voiceActive = true
			c.voiceStart = ev.Timestamp
		}
	case types.EventVoiceStop:
		c.voiceActive = false
	}
}

// ShouldInterrupt reports whether the event, with outbound speech in flight,
// authorizes a graceful interruption. It never authorizes when nothing is
// being spoken.
func (c *Controller) ShouldInterrupt(ev types.SessionEvent, speaking bool, now time.Time) bool {
	if !speaking || c.cfg.Strategy == playbook.InterruptNone {
		return false
	}

	vad := c.vadAuthorizes(ev, now)
	asr := c.asrAuthorizes(ev)

	switch c.cfg.Strategy {
	case playbook.InterruptVADOnly:
		return vad
	case playbook.InterruptASROnly:
		return asr
	case playbook.InterruptBoth:
		return vad || asr
	default:
		return false
	}
}

func (c *Controller) vadAuthorizes(ev types.SessionEvent, now time.Time) bool {
	if !c.voiceActive {
		return false
	}
	switch ev.Kind {
	case types.EventVoiceStart, types.EventPartialTranscript:
		return now.Sub(c.voiceStart) >= c.cfg.MinSpeech()
	default:
		return false
	}
}

func (c *Controller) asrAuthorizes(ev types.SessionEvent) bool {
	if ev.Kind != types.EventPartialTranscript {
		return false
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return false
	}
	if !c.cfg.FillerWordFilter {
		return true
	}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:…")
		if word == "" {
			continue
		}
		if _, filler := fillerWords[word]; !filler {
			return true
		}
	}
	return false
}
