package session

import (
	"sync"

	"github.com/Reverse-Call-Center/voice-playbook/metrics"
	"github.com/Reverse-Call-Center/voice-playbook/runner"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

// Call is one live session: its identity and the runner driving it.
type Call struct {
	Info   types.CallInfo
	Runner *runner.Runner
}

// State is nil-safe: a call can be registered before its runner starts.
func (c *Call) State() types.CallState {
	if c.Runner == nil {
		return types.StateConnecting
	}
	return c.Runner.State()
}

// Registry tracks live calls across the process. It backs the monitoring
// endpoints and the active-call gauge.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*Call
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*Call)}
}

func (r *Registry) Register(call *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[call.Info.ID] = call
	metrics.ActiveCalls.Set(float64(len(r.calls)))
}

func (r *Registry) Unregister(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, callID)
	metrics.ActiveCalls.Set(float64(len(r.calls)))
}

func (r *Registry) Get(callID string) (*Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	call, ok := r.calls[callID]
	return call, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// InState returns the calls currently in the given state.
func (r *Registry) InState(state types.CallState) []*Call {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var calls []*Call
	for _, call := range r.calls {
		if call.State() == state {
			calls = append(calls, call)
		}
	}
	return calls
}

// Snapshot lists every live call's identity and state.
func (r *Registry) Snapshot() []CallStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CallStatus, 0, len(r.calls))
	for _, call := range r.calls {
		out = append(out, CallStatus{
			ID:       call.Info.ID,
			CallerID: call.Info.CallerID,
			State:    call.State().String(),
			Started:  call.Info.StartTime,
		})
	}
	return out
}
