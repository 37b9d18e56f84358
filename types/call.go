package types

import "time"

// CallInfo is the immutable identity of one call, captured at setup.
type CallInfo struct {
	ID        string
	CallerID  string
	Callee    string
	StartTime time.Time
}

type CallState int

const (
	StateConnecting CallState = iota
	StateActive
	StateCollecting
	StateTransferring
	StateHangup
)

func (s CallState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateCollecting:
		return "collecting"
	case StateTransferring:
		return "transferring"
	case StateHangup:
		return "hangup"
	default:
		return "unknown"
	}
}
