package realtime

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Registry maps user ids to their live connections. A user may hold several
// sessions at once (multiple tabs, multiple devices).
type Registry interface {
	Register(userID string, peer *Peer) (sessionID string)
	Unregister(userID string, sessionID string)
	Peers(userID string) []*Peer
}

// MemoryRegistry is the process-local Registry used by a single server
// instance.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]map[string]*Peer
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]map[string]*Peer)}
}

// Register adds a connection for userID and returns its session handle.
func (r *MemoryRegistry) Register(userID string, peer *Peer) string {
	userID = strings.TrimSpace(userID)
	sessionID := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.sessions[userID]
	if !ok {
		peers = make(map[string]*Peer)
		r.sessions[userID] = peers
	}
	peers[sessionID] = peer
	return sessionID
}

// Unregister drops one session; unknown handles are ignored.
func (r *MemoryRegistry) Unregister(userID string, sessionID string) {
	userID = strings.TrimSpace(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.sessions[userID]
	if !ok {
		return
	}
	delete(peers, sessionID)
	if len(peers) == 0 {
		delete(r.sessions, userID)
	}
}

// Peers snapshots the user's live connections.
func (r *MemoryRegistry) Peers(userID string) []*Peer {
	userID = strings.TrimSpace(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := r.sessions[userID]
	if len(peers) == 0 {
		return nil
	}
	out := make([]*Peer, 0, len(peers))
	for _, peer := range peers {
		out = append(out, peer)
	}
	return out
}
