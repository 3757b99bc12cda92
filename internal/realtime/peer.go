// Package realtime tracks live websocket connections per user and pushes
// event frames to them. Delivery is best effort; a dropped connection never
// fails the operation that produced the event.
package realtime

import (
	"encoding/json"
	"sync"
)

// Frame is the JSON envelope exchanged over a websocket connection.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Peer serializes frame writes to one websocket connection.
type Peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewPeer wraps an encoder bound to a single connection.
func NewPeer(encoder *json.Encoder) *Peer {
	return &Peer{encoder: encoder}
}

// WriteFrame encodes one frame; concurrent writers do not interleave.
func (p *Peer) WriteFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}
