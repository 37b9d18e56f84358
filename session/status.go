package session

import "time"

// CallStatus is the wire form of one live call for monitoring clients.
type CallStatus struct {
	ID       string    `json:"id"`
	CallerID string    `json:"callerId,omitempty"`
	State    string    `json:"state"`
	Started  time.Time `json:"started"`
}
