package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const samplePlaybook = `---
llm:
  provider: openai
  model: gpt-4o-mini
  greeting: "Welcome to the service desk."
interruption:
  strategy: both
  minSpeechMs: 300
  fillerWordFilter: true
followup:
  timeoutMs: 10000
  max: 2
dtmfCollectors:
  phone:
    description: "11-digit phone number"
    digits: 11
    finishKey: "#"
    timeout: 20
    interDigitTimeout: 5
    validation:
      pattern: "^1[3-9]\\d{9}$"
      errorMessage: "Please enter a valid phone number"
    retryTimes: 3
  code:
    description: "6-digit verification code"
    digits: 6
    timeout: 30
    interDigitTimeout: 5
    retryTimes: 2
scenes:
  - id: welcome
    play: intro.wav
    prompt: "Greet the caller as {{ caller.number }}."
    dtmf:
      "1": goto support
      "0": hangup
      "9": transfer sip:operator@pbx.local
      "5": collect phone user_phone
  - id: support
    prompt: "Help the caller with their ticket."
posthook:
  url: https://hooks.example.com/call-report
  summary: full
  includeHistory: true
---
You are a polite phone assistant.`

func TestParsePlaybook(t *testing.T) {
	pb, err := Parse([]byte(samplePlaybook))
	require.NoError(t, err)

	assert.Equal(t, "You are a polite phone assistant.", pb.BasePrompt)
	assert.Equal(t, "openai", pb.Config.LLM.Provider)
	assert.Equal(t, InterruptBoth, pb.Config.Interruption.Strategy)
	assert.Equal(t, 10000, pb.Config.Followup.TimeoutMs)
	assert.True(t, pb.Config.Posthook.IncludeHistory)

	require.Equal(t, []string{"welcome", "support"}, pb.SceneIDs())
	assert.Equal(t, "welcome", pb.EntryScene().ID)

	welcome, ok := pb.Scene("welcome")
	require.True(t, ok)
	assert.Equal(t, "intro.wav", welcome.Play)
	assert.Equal(t, Binding{Action: BindGoto, Target: "support"}, welcome.Bindings["1"])
	assert.Equal(t, Binding{Action: BindHangup}, welcome.Bindings["0"])
	assert.Equal(t, Binding{Action: BindTransfer, Target: "sip:operator@pbx.local"}, welcome.Bindings["9"])
	assert.Equal(t, Binding{Action: BindCollect, Target: "phone", VarName: "user_phone"}, welcome.Bindings["5"])
}

func TestCollectorNormalization(t *testing.T) {
	pb, err := Parse([]byte(samplePlaybook))
	require.NoError(t, err)

	phone, ok := pb.Collector("phone")
	require.True(t, ok)
	assert.Equal(t, 11, phone.Digits)
	assert.Equal(t, 11, phone.MinDigits)
	assert.Equal(t, 11, phone.MaxDigits)
	assert.Equal(t, "#", phone.FinishKey)
	assert.True(t, phone.Validation.Matches("13800000000"))
	assert.False(t, phone.Validation.Matches("03800000000"))

	code, ok := pb.Collector("code")
	require.True(t, ok)
	assert.Empty(t, code.FinishKey)
	assert.Equal(t, 6, code.MaxDigits)

	assert.Equal(t, []string{"code", "phone"}, pb.CollectorNames())
}

func TestCollectorRoundTrip(t *testing.T) {
	pb, err := Parse([]byte(samplePlaybook))
	require.NoError(t, err)

	out, err := pb.MarshalConfig()
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, yaml.Unmarshal(out, &cfg))

	phone := cfg.Collectors["phone"]
	require.NotNil(t, phone)
	// Derived bounds must survive serialization.
	assert.Equal(t, 11, phone.Digits)
	assert.Equal(t, 11, phone.MinDigits)
	assert.Equal(t, 11, phone.MaxDigits)
	assert.Equal(t, "#", phone.FinishKey)
	assert.Equal(t, 20, phone.TimeoutSec)
	assert.Equal(t, 5, phone.InterDigitTimeout)
	assert.Equal(t, 3, phone.RetryTimes)
	require.NotNil(t, phone.Validation)
	assert.Equal(t, `^1[3-9]\d{9}$`, phone.Validation.Pattern)
	assert.Equal(t, "Please enter a valid phone number", phone.Validation.ErrorMessage)
}

func TestParseRejectsMissingFrontMatter(t *testing.T) {
	_, err := Parse([]byte("just a prompt"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestParseRejectsBadPattern(t *testing.T) {
	bad := `---
dtmfCollectors:
  broken:
    digits: 4
    validation:
      pattern: "([unclosed"
---
prompt`
	_, err := Parse([]byte(bad))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Field, "broken")
}

func TestParseRejectsUnknownSceneReference(t *testing.T) {
	bad := `---
scenes:
  - id: only
    dtmf:
      "1": goto nowhere
---
prompt`
	_, err := Parse([]byte(bad))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "nowhere")
}

func TestParseRejectsUnknownCollectorReference(t *testing.T) {
	bad := `---
scenes:
  - id: only
    dtmf:
      "1": collect missing var
---
prompt`
	_, err := Parse([]byte(bad))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestParseRejectsBadBinding(t *testing.T) {
	bad := `---
scenes:
  - id: only
    dtmf:
      "1": frobnicate
---
prompt`
	_, err := Parse([]byte(bad))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
