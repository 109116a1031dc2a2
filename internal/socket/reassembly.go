package socket

import (
	"time"

	"github.com/1ureka/slotcast/internal/channel"
	"github.com/1ureka/slotcast/internal/protocol"
	"github.com/1ureka/slotcast/internal/util"
)

// reassemblyKey identifies one in-progress message: ids are only unique per
// sender (and wrap mod 256), so the sender is part of the key.
type reassemblyKey struct {
	peer  channel.PeerID
	msgID uint8
}

// reassemblyState accumulates the chunks of one message. The received count
// is len(chunks): only distinct indices are stored.
type reassemblyState struct {
	total        int
	chunks       map[int][]byte
	lastActivity time.Time
}

// reassemblyTable buffers partially received messages until they complete,
// expire, or their sender disappears. Callers hold the socket lock.
type reassemblyTable struct {
	entries map[reassemblyKey]*reassemblyState
}

func newReassemblyTable() *reassemblyTable {
	return &reassemblyTable{entries: make(map[reassemblyKey]*reassemblyState)}
}

// feed applies one DATA frame. When the frame completes its message, the
// reconstructed bytes are returned and the entry removed.
//
// A frame declaring a different total than the existing entry resets the
// state: the id was recycled for a new message before the old state
// expired. That trade is lossy on purpose — this is not a strict delivery
// guarantee. Re-delivery of an already-stored chunk index is idempotent and
// never overwrites the stored payload.
func (t *reassemblyTable) feed(peer channel.PeerID, f *protocol.Frame, now time.Time) ([]byte, bool) {
	key := reassemblyKey{peer: peer, msgID: f.MsgID}

	st, ok := t.entries[key]
	if !ok || st.total != int(f.TotalChunks) {
		st = &reassemblyState{
			total:  int(f.TotalChunks),
			chunks: make(map[int][]byte),
		}
		t.entries[key] = st
	}
	st.lastActivity = now

	idx := int(f.ChunkIndex)
	if _, dup := st.chunks[idx]; !dup {
		st.chunks[idx] = append([]byte(nil), f.Payload[:f.PayloadLen]...)
	}

	if len(st.chunks) < st.total {
		return nil, false
	}

	// Complete — concatenate in ascending index order.
	out := make([]byte, 0, st.total*protocol.MaxChunkPayload)
	for i := 1; i <= st.total; i++ {
		chunk, ok := st.chunks[i]
		if !ok {
			// Should be unreachable: count says complete but an index is
			// missing. Abort without output; expiry will clean the entry.
			util.LogWarning("reassembly: %d/%d chunks but index %d missing (peer=%s msg=%d)",
				len(st.chunks), st.total, i, peer, f.MsgID)
			return nil, false
		}
		out = append(out, chunk...)
	}

	delete(t.entries, key)
	return out, true
}

// prune drops entries whose sender is no longer present and entries idle
// beyond staleAfter.
func (t *reassemblyTable) prune(now time.Time, alive map[channel.PeerID]bool) {
	for key, st := range t.entries {
		if !alive[key.peer] || now.Sub(st.lastActivity) > staleAfter {
			delete(t.entries, key)
		}
	}
}
