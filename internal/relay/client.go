package relay

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/slotcast/internal/channel"
	"github.com/1ureka/slotcast/internal/util"
)

// Channel is the client side of a relayed slot field. It mirrors the
// remote peers' slots locally — pushed updates land in the mirror, and the
// protocol's poll loop reads the mirror, which preserves the channel
// semantics: only the current value is observable, and a slow poller sees
// fast writes coalesce. It implements channel.Adapter and
// channel.Directory.
type Channel struct {
	local channel.PeerID
	conn  *websocket.Conn

	writeMu sync.Mutex // serializes WriteJSON

	mu      sync.RWMutex
	slots   map[channel.PeerID]channel.Value
	present map[channel.PeerID]struct{}

	done chan struct{}
	once sync.Once
}

// Dial connects to a relay server, joins the named field as local, and
// waits for the initial snapshot before returning, so the first poll
// already sees the current membership.
func Dial(ctx context.Context, rawURL, fieldName string, local channel.PeerID) (*Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	q := u.Query()
	q.Set("field", fieldName)
	q.Set("peer", string(local))
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relay connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("relay connect failed: %w", err)
	}

	c := &Channel{
		local:   local,
		conn:    conn,
		slots:   make(map[channel.PeerID]channel.Value),
		present: map[channel.PeerID]struct{}{local: {}},
		done:    make(chan struct{}),
	}

	var snapshot message
	if err := conn.ReadJSON(&snapshot); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading field snapshot: %w", err)
	}
	if snapshot.Type != msgTypeSnapshot {
		conn.Close()
		return nil, fmt.Errorf("unexpected first message %q", snapshot.Type)
	}
	c.applySnapshot(snapshot)

	go c.readLoop()
	return c, nil
}

// Close drops the relay connection. Safe to call more than once.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Done returns a channel closed when the relay connection is gone.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Read returns the mirrored slot value of the given peer.
func (c *Channel) Read(p channel.PeerID) (channel.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.slots[p]
	return v, ok
}

// Write replaces the local slot: the value goes up to the relay, which
// fans it out. The local mirror also records it so Peers/Read stay
// coherent for observers on this side.
func (c *Channel) Write(local channel.PeerID, v channel.Value) {
	c.mu.Lock()
	c.slots[local] = v
	c.present[local] = struct{}{}
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(message{Type: msgTypeState, Value: v})
	c.writeMu.Unlock()
	if err != nil {
		c.Close()
	}
}

// Peers returns the field membership (including the local peer) in a
// stable order.
func (c *Channel) Peers() []channel.PeerID {
	c.mu.RLock()
	out := make([]channel.PeerID, 0, len(c.present))
	for p := range c.present {
		out = append(out, p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// readLoop applies pushed field updates to the mirror until the connection
// fails.
func (c *Channel) readLoop() {
	defer c.Close()

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
				// Already closing — no need to log.
			default:
				util.LogDebug("relay read loop ended: %v", err)
			}
			return
		}

		c.mu.Lock()
		switch msg.Type {
		case msgTypeState:
			p := channel.PeerID(msg.Peer)
			c.present[p] = struct{}{}
			c.slots[p] = channel.Value(msg.Value)
		case msgTypeJoin:
			c.present[channel.PeerID(msg.Peer)] = struct{}{}
		case msgTypeLeave:
			p := channel.PeerID(msg.Peer)
			delete(c.present, p)
			delete(c.slots, p)
		case msgTypeSnapshot:
			c.applySnapshotLocked(msg)
		}
		c.mu.Unlock()
	}
}

func (c *Channel) applySnapshot(msg message) {
	c.mu.Lock()
	c.applySnapshotLocked(msg)
	c.mu.Unlock()
}

// applySnapshotLocked replaces the mirror with the field state the server
// sent. Caller holds the write lock.
func (c *Channel) applySnapshotLocked(msg message) {
	for p := range c.present {
		if p != c.local {
			delete(c.present, p)
		}
	}
	clear(c.slots)

	for _, ps := range msg.Peers {
		p := channel.PeerID(ps.Peer)
		c.present[p] = struct{}{}
		if ps.Set {
			c.slots[p] = channel.Value(ps.Value)
		}
	}
}
