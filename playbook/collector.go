package playbook

import (
	"fmt"
	"regexp"
)

// Validation constrains collected digits with a regular expression. The
// pattern is compiled at load time so a bad pattern can never reach a call.
type Validation struct {
	Pattern      string `yaml:"pattern"`
	ErrorMessage string `yaml:"errorMessage,omitempty"`

	re *regexp.Regexp
}

func (v *Validation) Matches(digits string) bool {
	if v == nil || v.re == nil {
		return true
	}
	return v.re.MatchString(digits)
}

// CollectorTemplate configures one DTMF digit-acquisition state machine.
// `digits: N` is sugar for minDigits = maxDigits = N; Normalize resolves it
// so the derived bounds survive re-serialization.
type CollectorTemplate struct {
	Description       string      `yaml:"description,omitempty"`
	Digits            int         `yaml:"digits,omitempty"`
	MinDigits         int         `yaml:"minDigits,omitempty"`
	MaxDigits         int         `yaml:"maxDigits,omitempty"`
	FinishKey         string      `yaml:"finishKey,omitempty"`
	TimeoutSec        int         `yaml:"timeout,omitempty"`
	InterDigitTimeout int         `yaml:"interDigitTimeout,omitempty"`
	Validation        *Validation `yaml:"validation,omitempty"`
	RetryTimes        int         `yaml:"retryTimes,omitempty"`
	Interruptible     bool        `yaml:"interruptible,omitempty"`
}

func (t *CollectorTemplate) Normalize() {
	if t.Digits > 0 {
		t.MinDigits = t.Digits
		t.MaxDigits = t.Digits
	}
}

// Compile resolves the validation pattern. Parse calls this for every
// template; callers constructing templates programmatically must too.
func (t *CollectorTemplate) Compile() error {
	if t.Validation == nil {
		return nil
	}
	re, err := regexp.Compile(t.Validation.Pattern)
	if err != nil {
		return fmt.Errorf("invalid validation pattern %q: %w", t.Validation.Pattern, err)
	}
	t.Validation.re = re
	return nil
}
