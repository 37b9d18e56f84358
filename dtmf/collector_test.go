package dtmf

import (
	"testing"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func phoneTemplate(t *testing.T) *playbook.CollectorTemplate {
	t.Helper()
	tmpl := &playbook.CollectorTemplate{
		Description:       "11-digit phone number",
		Digits:            11,
		FinishKey:         "#",
		TimeoutSec:        20,
		InterDigitTimeout: 5,
		Validation: &playbook.Validation{
			Pattern:      `^1[3-9]\d{9}$`,
			ErrorMessage: "Please enter a valid 11-digit phone number starting with 1",
		},
		RetryTimes: 3,
	}
	return normalized(t, tmpl)
}

func codeTemplate(t *testing.T) *playbook.CollectorTemplate {
	t.Helper()
	return normalized(t, &playbook.CollectorTemplate{
		Description:       "6-digit verification code",
		Digits:            6,
		TimeoutSec:        30,
		InterDigitTimeout: 5,
		RetryTimes:        2,
	})
}

// normalized resolves digit sugar and compiles the pattern, same as a load.
func normalized(t *testing.T, tmpl *playbook.CollectorTemplate) *playbook.CollectorTemplate {
	t.Helper()
	tmpl.Normalize()
	require.NoError(t, tmpl.Compile())
	return tmpl
}

func feed(c *Collection, digits string, now time.Time) Result {
	var res Result
	for _, d := range digits {
		res = c.Digit(string(d), now)
	}
	return res
}

func TestValidPhoneNumberCompletes(t *testing.T) {
	now := time.Now()
	c := Start("phone", "user_phone", phoneTemplate(t), now)

	res := feed(c, "13800000000", now)
	// 11 digits == max, auto-validates even before the finish key.
	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "13800000000", res.Value)
	assert.False(t, c.Active())
}

func TestFinishKeyForcesValidation(t *testing.T) {
	now := time.Now()
	c := Start("phone", "user_phone", phoneTemplate(t), now)

	feed(c, "12345", now)
	res := c.Digit("#", now)

	require.Equal(t, OutcomeRetry, res.Outcome)
	assert.Contains(t, res.ErrorPrompt, "valid 11-digit phone number")
	assert.True(t, c.Active())
	assert.Empty(t, c.Buffer())
	assert.Equal(t, 1, c.RetryCount())
}

func TestPatternFailureRetriesThenFails(t *testing.T) {
	tmpl := phoneTemplate(t)
	tmpl.RetryTimes = 2
	now := time.Now()
	c := Start("phone", "user_phone", tmpl, now)

	// Initial attempt plus two retries, all invalid.
	res := feed(c, "00000000000", now)
	require.Equal(t, OutcomeRetry, res.Outcome)

	res = feed(c, "00000000000", now)
	require.Equal(t, OutcomeRetry, res.Outcome)
	assert.Equal(t, 2, c.RetryCount())

	res = feed(c, "00000000000", now)
	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "after 2 retries")
	assert.False(t, c.Active())
}

func TestDigitAccumulation(t *testing.T) {
	now := time.Now()
	c := Start("code", "verification_code", codeTemplate(t), now)

	for i, d := range []string{"1", "2", "3"} {
		res := c.Digit(d, now)
		assert.Equal(t, OutcomeNone, res.Outcome, "digit %d", i)
	}
	assert.Equal(t, "123", c.Buffer())
}

func TestAutoCompleteAtMaxDigits(t *testing.T) {
	now := time.Now()
	c := Start("code", "verification_code", codeTemplate(t), now)

	feed(c, "12345", now)
	assert.True(t, c.Active())

	res := c.Digit("6", now)
	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "123456", res.Value)
	assert.False(t, c.Active())
}

func TestTotalTimeoutWithNoDigitsFails(t *testing.T) {
	now := time.Now()
	c := Start("code", "verification_code", codeTemplate(t), now)

	res := c.Tick(now.Add(31 * time.Second))
	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "timed out")
	// No retry for an empty timeout: there is nothing to validate.
	assert.Equal(t, 0, c.RetryCount())
}

func TestInterDigitTimeoutWithInsufficientDigitsRetries(t *testing.T) {
	now := time.Now()
	c := Start("code", "verification_code", codeTemplate(t), now)

	feed(c, "123", now)
	res := c.Tick(now.Add(6 * time.Second))

	require.Equal(t, OutcomeRetry, res.Outcome)
	assert.True(t, c.Active())
	assert.Equal(t, 1, c.RetryCount())
	assert.Empty(t, c.Buffer())
}

func TestTickBeforeDeadlinesIsNoop(t *testing.T) {
	now := time.Now()
	c := Start("code", "verification_code", codeTemplate(t), now)

	feed(c, "123", now)
	res := c.Tick(now.Add(2 * time.Second))
	assert.Equal(t, OutcomeNone, res.Outcome)
	assert.Equal(t, "123", c.Buffer())
}

func TestRetryRestartsClockFromInjectedTime(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	c := Start("code", "verification_code", codeTemplate(t), base)

	feed(c, "123", base)
	res := c.Tick(base.Add(6 * time.Second))
	require.Equal(t, OutcomeRetry, res.Outcome)

	// The retry attempt starts at the tick time, not the wall clock.
	assert.Equal(t, base.Add(36*time.Second), c.NextDeadline())
	assert.Equal(t, OutcomeNone, c.Tick(base.Add(20*time.Second)).Outcome)
}

func TestNextDeadline(t *testing.T) {
	now := time.Now()
	c := Start("code", "verification_code", codeTemplate(t), now)

	// No digits yet: only the total deadline applies.
	assert.Equal(t, now.Add(30*time.Second), c.NextDeadline())

	c.Digit("1", now.Add(time.Second))
	// With digits buffered the inter-digit deadline comes first.
	assert.Equal(t, now.Add(6*time.Second), c.NextDeadline())
}
