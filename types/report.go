package types

import "time"

// TranscriptEntry is one spoken turn, caller or agent, kept for the
// end-of-call report.
type TranscriptEntry struct {
	Role string    `json:"role"` // "caller" or "agent"
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// CallReport summarizes a finished call for the post-call webhook.
type CallReport struct {
	CallID     string            `json:"callId"`
	CallerID   string            `json:"callerId"`
	Callee     string            `json:"callee"`
	StartTime  time.Time         `json:"startTime"`
	EndTime    time.Time         `json:"endTime"`
	FinalState string            `json:"finalState"`
	Variables  map[string]string `json:"variables,omitempty"`
	Transcript []TranscriptEntry `json:"transcript,omitempty"`
}
