package socket

import (
	"context"
	"time"

	"github.com/1ureka/slotcast/internal/channel"
	"github.com/1ureka/slotcast/internal/protocol"
	"github.com/1ureka/slotcast/internal/util"
)

// runReceiver drives one poll per tick until the socket stops. A poll
// completes fully within its tick; it never suspends midway.
func (s *Socket) runReceiver(ctx context.Context, ticks <-chan time.Duration, unsub func()) {
	defer s.wg.Done()
	defer unsub()

	for {
		select {
		case <-ticks:
			s.poll()
		case <-ctx.Done():
			return
		}
	}
}

// poll samples every remote peer's slot once, dispatches whatever changed,
// and prunes state belonging to departed peers or gone stale.
//
// Change detection against the last-seen cache is what separates "nothing
// new" from "new frame": a peer that never rewrites its slot must never be
// treated as retransmitting.
func (s *Socket) poll() {
	now := s.clk.Now()

	s.mu.Lock()
	if s.cfg.PollInterval > 0 && !s.lastPoll.IsZero() && now.Sub(s.lastPoll) < s.cfg.PollInterval {
		s.mu.Unlock()
		return
	}
	s.lastPoll = now
	s.mu.Unlock()

	peers := s.cfg.Peers.Peers()
	alive := make(map[channel.PeerID]bool, len(peers))

	for _, peer := range peers {
		alive[peer] = true
		if peer == s.cfg.Local {
			continue
		}

		value, ok := s.cfg.Channel.Read(peer)
		if !ok {
			continue
		}

		s.mu.Lock()
		prev, seen := s.lastSeen[peer]
		if seen && prev == value {
			s.mu.Unlock()
			continue
		}
		s.lastSeen[peer] = value
		s.mu.Unlock()

		util.Stats.AddFrameIn()

		frame, err := protocol.Decode(protocol.Unpack(value))
		if err != nil {
			// Malformed frames are expected noise (stray or default slot
			// values) and never surface past this point.
			util.LogDebug("dropping malformed frame from %s: %v", peer, err)
			continue
		}

		switch frame.Tag {
		case protocol.TagData:
			s.handleData(peer, frame, now)
		case protocol.TagAck:
			s.handleAck(frame)
		}
	}

	s.mu.Lock()
	s.reasm.prune(now, alive)
	for peer := range s.lastSeen {
		if !alive[peer] {
			delete(s.lastSeen, peer)
		}
	}
	s.mu.Unlock()
}

// handleData feeds a chunk into reassembly; a completed message is
// delivered to the handlers and answered with exactly one best-effort ACK.
// The ACK itself is never acknowledged.
func (s *Socket) handleData(peer channel.PeerID, f *protocol.Frame, now time.Time) {
	s.mu.Lock()
	data, complete := s.reasm.feed(peer, f, now)
	s.mu.Unlock()

	if !complete {
		return
	}

	s.deliver(peer, data)

	ack := protocol.AckFrame(f.MsgID, protocol.PeerHash16(peer), s.localHash)
	s.cfg.Channel.Write(s.cfg.Local, protocol.Pack(protocol.Encode(ack)))
	util.Stats.AddAckSent()
}

// handleAck records a confirmation when the ACK is addressed to this peer.
// The 16-bit recipient hash can collide across peers; a colliding ack is
// accepted as-is, matching the wire protocol's unresolved ambiguity.
func (s *Socket) handleAck(f *protocol.Frame) {
	if f.SenderHash != s.localHash {
		return
	}

	s.mu.Lock()
	s.acks.confirm(f.MsgID, f.AckerHash)
	s.mu.Unlock()
	util.Stats.AddAckIn()
}
