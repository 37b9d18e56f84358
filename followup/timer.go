package followup

import (
	"sync"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

// Timer re-engages a silent caller. It is single-shot and re-armed on every
// qualifying event. A fire is delivered through the sink as an ordinary
// session event carrying a generation number; the runner drops fires whose
// generation was superseded by a later arm, so a firing timer can never race
// an event that just reset it.
type Timer struct {
	mu    sync.Mutex
	cfg   playbook.FollowupConfig
	sink  func(types.SessionEvent)
	timer *time.Timer
	gen   uint64
	count int
}

func NewTimer(cfg playbook.FollowupConfig, sink func(types.SessionEvent)) *Timer {
	return &Timer{cfg: cfg, sink: sink}
}

// Arm schedules the next fire after d. A zero d uses the configured timeout;
// if none is configured the timer stays disarmed.
func (t *Timer) Arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d <= 0 {
		d = t.cfg.Timeout()
	}
	t.stopLocked()
	if d <= 0 {
		return
	}

	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(d, func() {
		t.sink(types.SessionEvent{Kind: types.EventFollowupFired, Gen: gen, Timestamp: time.Now()})
	})
}

// Stop disarms the timer and invalidates any in-flight fire.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.gen++
}

func (t *Timer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Fired validates a delivered fire. It returns true when the fire is current
// and the follow-up budget is not exhausted, counting the follow-up.
func (t *Timer) Fired(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen {
		return false
	}
	if t.count >= t.cfg.Max {
		return false
	}
	t.count++
	return true
}

// ResetCount clears the follow-up budget, on a final transcript, a
// successful collection or a scene transition. The count never goes below
// zero because it only ever resets to it.
func (t *Timer) ResetCount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count = 0
}

func (t *Timer) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
