package interrupt

import (
	"testing"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/types"
	"github.com/stretchr/testify/assert"
)

func TestStrategyNoneNeverInterrupts(t *testing.T) {
	c := NewController(playbook.InterruptionConfig{Strategy: playbook.InterruptNone})
	now := time.Now()

	events := []types.SessionEvent{
		types.VoiceStart(),
		types.PartialTranscript("stop talking please"),
		types.FinalTranscript("stop"),
	}
	for _, ev := range events {
		c.Observe(ev)
		assert.False(t, c.ShouldInterrupt(ev, true, now.Add(time.Minute)), "event %s", ev.Kind)
	}
}

func TestNotSpeakingNeverInterrupts(t *testing.T) {
	c := NewController(playbook.InterruptionConfig{Strategy: playbook.InterruptBoth})
	ev := types.VoiceStart()
	c.Observe(ev)
	assert.False(t, c.ShouldInterrupt(ev, false, time.Now()))
}

func TestVADOnlyRequiresSustainedSpeech(t *testing.T) {
	c := NewController(playbook.InterruptionConfig{
		Strategy:    playbook.InterruptVADOnly,
		MinSpeechMs: 500,
	})

	start := types.VoiceStart()
	c.Observe(start)

	// Too early.
	assert.False(t, c.ShouldInterrupt(start, true, start.Timestamp.Add(100*time.Millisecond)))

	// A later event past the threshold while voice is still active.
	partial := types.PartialTranscript("hold on")
	assert.True(t, c.ShouldInterrupt(partial, true, start.Timestamp.Add(600*time.Millisecond)))

	// Voice stopped: no longer an attempt.
	c.Observe(types.VoiceStop())
	assert.False(t, c.ShouldInterrupt(partial, true, start.Timestamp.Add(time.Second)))
}

func TestASROnlyFiltersFillers(t *testing.T) {
	c := NewController(playbook.InterruptionConfig{
		Strategy:         playbook.InterruptASROnly,
		FillerWordFilter: true,
	})
	now := time.Now()

	assert.False(t, c.ShouldInterrupt(types.PartialTranscript("uh"), true, now))
	assert.False(t, c.ShouldInterrupt(types.PartialTranscript("um, er..."), true, now))
	assert.False(t, c.ShouldInterrupt(types.PartialTranscript("   "), true, now))
	assert.True(t, c.ShouldInterrupt(types.PartialTranscript("uh wait a moment"), true, now))

	// VAD alone is not enough for asr-only.
	start := types.VoiceStart()
	c.Observe(start)
	assert.False(t, c.ShouldInterrupt(start, true, now.Add(time.Minute)))
}

func TestBothAuthorizesOnEitherCondition(t *testing.T) {
	c := NewController(playbook.InterruptionConfig{
		Strategy:         playbook.InterruptBoth,
		MinSpeechMs:      1000,
		FillerWordFilter: true,
	})

	start := types.VoiceStart()
	c.Observe(start)

	// VAD window not met, but the transcript is substantive.
	partial := types.PartialTranscript("I have a question")
	assert.True(t, c.ShouldInterrupt(partial, true, start.Timestamp.Add(10*time.Millisecond)))

	// Filler transcript, but the VAD window is met.
	filler := types.PartialTranscript("um")
	assert.True(t, c.ShouldInterrupt(filler, true, start.Timestamp.Add(2*time.Second)))
}
