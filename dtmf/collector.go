package dtmf

import (
	"fmt"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
)

const (
	defaultTimeout           = 30 * time.Second
	defaultInterDigitTimeout = 5 * time.Second
)

type State int

const (
	StateCollecting State = iota
	StateCompleted
	StateFailed
)

type Outcome int

const (
	// OutcomeNone: digit absorbed, still collecting.
	OutcomeNone Outcome = iota
	// OutcomeRetry: validation failed, a retry attempt started. ErrorPrompt
	// carries the message to play before the caller tries again.
	OutcomeRetry
	OutcomeCompleted
	OutcomeFailed
)

type Result struct {
	Outcome     Outcome
	Value       string // completed: the accepted digit sequence
	Reason      string // failed: why
	ErrorPrompt string // retry: spoken error message
}

// Collection is one in-flight digit acquisition. At most one exists per call;
// it is owned by the runner's goroutine and needs no locking.
type Collection struct {
	Name    string
	VarName string

	tmpl       *playbook.CollectorTemplate
	buffer     string
	retryCount int
	state      State
	startedAt  time.Time
	lastDigit  time.Time
}

// Start begins collecting against a template. The template has already been
// normalized and validated by the playbook load.
func Start(name, varName string, tmpl *playbook.CollectorTemplate, now time.Time) *Collection {
	return &Collection{
		Name:      name,
		VarName:   varName,
		tmpl:      tmpl,
		state:     StateCollecting,
		startedAt: now,
		lastDigit: now,
	}
}

func (c *Collection) Active() bool { return c.state == StateCollecting }

func (c *Collection) Buffer() string { return c.buffer }

func (c *Collection) RetryCount() int { return c.retryCount }

func (c *Collection) Interruptible() bool { return c.tmpl.Interruptible }

func (c *Collection) totalTimeout() time.Duration {
	if c.tmpl.TimeoutSec > 0 {
		return time.Duration(c.tmpl.TimeoutSec) * time.Second
	}
	return defaultTimeout
}

func (c *Collection) interDigitTimeout() time.Duration {
	if c.tmpl.InterDigitTimeout > 0 {
		return time.Duration(c.tmpl.InterDigitTimeout) * time.Second
	}
	return defaultInterDigitTimeout
}

// NextDeadline reports when the runner should check timeouts next.
func (c *Collection) NextDeadline() time.Time {
	total := c.startedAt.Add(c.totalTimeout())
	if c.buffer == "" {
		return total
	}
	inter := c.lastDigit.Add(c.interDigitTimeout())
	if inter.Before(total) {
		return inter
	}
	return total
}

// Digit feeds one DTMF press into the machine.
func (c *Collection) Digit(digit string, now time.Time) Result {
	if c.state != StateCollecting {
		return Result{Outcome: OutcomeNone}
	}

	if c.tmpl.FinishKey != "" && digit == c.tmpl.FinishKey {
		return c.validate(now)
	}

	c.buffer += digit
	c.lastDigit = now

	// Without a finish key, reaching max length is the only way to finish
	// short of a timeout.
	if c.tmpl.MaxDigits > 0 && len(c.buffer) >= c.tmpl.MaxDigits {
		return c.validate(now)
	}
	return Result{Outcome: OutcomeNone}
}

// Tick checks the total and inter-digit deadlines. Stale timer fires are
// harmless: deadlines are re-evaluated against the clock.
func (c *Collection) Tick(now time.Time) Result {
	if c.state != StateCollecting {
		return Result{Outcome: OutcomeNone}
	}

	if now.Sub(c.startedAt) >= c.totalTimeout() {
		if c.buffer == "" {
			// Nothing to validate: report, don't retry.
			c.state = StateFailed
			return Result{Outcome: OutcomeFailed, Reason: "collection timed out with no input"}
		}
		return c.validate(now)
	}

	if c.buffer != "" && now.Sub(c.lastDigit) >= c.interDigitTimeout() {
		return c.validate(now)
	}
	return Result{Outcome: OutcomeNone}
}

func (c *Collection) validate(now time.Time) Result {
	digits := c.buffer

	if c.tmpl.MinDigits > 0 && len(digits) < c.tmpl.MinDigits {
		return c.reject(fmt.Sprintf("expected at least %d digits, got %d", c.tmpl.MinDigits, len(digits)), now)
	}
	if !c.tmpl.Validation.Matches(digits) {
		return c.reject("input did not match the expected pattern", now)
	}

	c.state = StateCompleted
	return Result{Outcome: OutcomeCompleted, Value: digits}
}

func (c *Collection) reject(reason string, now time.Time) Result {
	if c.retryCount < c.tmpl.RetryTimes {
		c.retryCount++
		c.buffer = ""
		c.startedAt = now
		c.lastDigit = now
		return Result{Outcome: OutcomeRetry, ErrorPrompt: c.errorPrompt()}
	}
	c.state = StateFailed
	return Result{
		Outcome: OutcomeFailed,
		Reason:  fmt.Sprintf("%s after %d retries", reason, c.tmpl.RetryTimes),
	}
}

func (c *Collection) errorPrompt() string {
	if c.tmpl.Validation != nil && c.tmpl.Validation.ErrorMessage != "" {
		return c.tmpl.Validation.ErrorMessage
	}
	return "That input was not valid, please try again."
}
