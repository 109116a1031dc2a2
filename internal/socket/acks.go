package socket

import "time"

// ackState records the confirmations for one reliable in-flight message:
// the set of confirming peer hashes and when the send started. Keying the
// set by hash means duplicate acks from one peer never double-count.
type ackState struct {
	confirmed map[uint16]struct{}
	start     time.Time
}

// ackTracker holds the ackState of every reliable message currently in
// flight, keyed by its sender-local message id. Callers hold the socket
// lock; the resend loop treats a vanished entry as its cancellation signal.
type ackTracker struct {
	pending map[uint8]*ackState
}

func newAckTracker() *ackTracker {
	return &ackTracker{pending: make(map[uint8]*ackState)}
}

// track begins tracking a reliable send starting now. A stale entry under
// the same id (wrapped counter) is discarded.
func (t *ackTracker) track(msgID uint8, now time.Time) {
	t.pending[msgID] = &ackState{
		confirmed: make(map[uint16]struct{}),
		start:     now,
	}
}

// confirm records an acknowledgement. Acks for untracked ids are ignored —
// they belong to an already finished (or never reliable) message.
func (t *ackTracker) confirm(msgID uint8, acker uint16) {
	if st, ok := t.pending[msgID]; ok {
		st.confirmed[acker] = struct{}{}
	}
}

// progress reports the confirmation count and start time of a tracked
// message. ok is false when the entry no longer exists.
func (t *ackTracker) progress(msgID uint8) (count int, start time.Time, ok bool) {
	st, ok := t.pending[msgID]
	if !ok {
		return 0, time.Time{}, false
	}
	return len(st.confirmed), st.start, true
}

// drop removes a tracked message.
func (t *ackTracker) drop(msgID uint8) {
	delete(t.pending, msgID)
}

// clear removes every tracked message, which makes any active resend loop
// exit at its next iteration.
func (t *ackTracker) clear() {
	t.pending = make(map[uint8]*ackState)
}
