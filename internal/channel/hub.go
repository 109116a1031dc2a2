package channel

import (
	"sort"
	"sync"
)

// Hub is an in-process slot field: one slot per joined peer, shared by all
// of them. It implements both Adapter and Directory, so a set of sockets in
// the same process can talk to each other without any network substrate.
type Hub struct {
	mu      sync.RWMutex
	slots   map[PeerID]Value
	present map[PeerID]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		slots:   make(map[PeerID]Value),
		present: make(map[PeerID]struct{}),
	}
}

// Join registers a peer. Its slot starts unset — Read reports absence until
// the first Write.
func (h *Hub) Join(p PeerID) {
	h.mu.Lock()
	h.present[p] = struct{}{}
	h.mu.Unlock()
}

// Leave removes a peer and its slot.
func (h *Hub) Leave(p PeerID) {
	h.mu.Lock()
	delete(h.present, p)
	delete(h.slots, p)
	h.mu.Unlock()
}

// Read returns the current slot value of the given peer.
func (h *Hub) Read(p PeerID) (Value, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.slots[p]
	return v, ok
}

// Write replaces the whole slot of the local peer. Joining is implicit:
// writing to an unknown peer's slot registers it.
func (h *Hub) Write(local PeerID, v Value) {
	h.mu.Lock()
	h.present[local] = struct{}{}
	h.slots[local] = v
	h.mu.Unlock()
}

// Peers returns the current membership in a stable order.
func (h *Hub) Peers() []PeerID {
	h.mu.RLock()
	out := make([]PeerID, 0, len(h.present))
	for p := range h.present {
		out = append(out, p)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
