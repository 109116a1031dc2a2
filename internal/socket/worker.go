package socket

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/1ureka/slotcast/internal/protocol"
	"github.com/1ureka/slotcast/internal/util"
)

// msgIDCounter reserves outbound message ids. It is process-wide and wraps
// mod 256, so ids may be reused while older receiver state for the same id
// is still alive; reassembly's reset-on-mismatched-total heuristic absorbs
// that.
var msgIDCounter atomic.Uint32

// nextMsgID returns the next outbound message id.
func nextMsgID() uint8 {
	return uint8(msgIDCounter.Add(1))
}

// descriptor is one queued outbound message.
type descriptor struct {
	msgID uint8
	data  []byte
	opts  SendOptions
}

// Send reserves a message id, enqueues the message, and returns the id
// immediately; transmission is deferred to the single send worker. With
// Loopback enabled the assembled message is also delivered synchronously to
// local handlers before Send returns.
//
// A reliable send's outcome is observable only through the tracker: a
// timeout is a normal terminal state, not an error.
func (s *Socket) Send(data []byte, opts SendOptions) (uint8, error) {
	if len(data) > protocol.MaxMessageSize {
		return 0, fmt.Errorf("message too large: %d bytes (max %d)", len(data), protocol.MaxMessageSize)
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return 0, fmt.Errorf("socket not started")
	}

	d := &descriptor{
		msgID: nextMsgID(),
		data:  append([]byte(nil), data...),
		opts:  opts.withDefaults(),
	}
	s.queue = append(s.queue, d)

	// Restart the worker if it drained the queue and exited.
	if !s.workerUp {
		s.workerUp = true
		s.wg.Add(1)
		go s.runWorker(s.ctx)
	}
	s.mu.Unlock()

	if s.cfg.Loopback {
		s.deliver(s.cfg.Local, append([]byte(nil), data...))
	}
	return d.msgID, nil
}

// runWorker is the single queue consumer. It runs one descriptor to full
// completion — including any reliable resend loop — before taking the
// next, so the local slot never carries two in-flight messages at once.
// Between descriptors it idles exactly one tick, keeping the last chunk of
// a finished message distinguishable from the first chunk of the next for
// a once-per-tick poller. It exits when the queue empties.
func (s *Socket) runWorker(ctx context.Context) {
	defer s.wg.Done()

	ticks, unsub := s.sendTicks.Subscribe()
	defer unsub()

	for {
		s.mu.Lock()
		if ctx.Err() != nil || len(s.queue) == 0 {
			s.workerUp = false
			s.mu.Unlock()
			return
		}
		d := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.transmit(ctx, d, ticks)

		if !s.waitTick(ctx, ticks) {
			// Cancelled while idling; the top of the loop cleans up.
			continue
		}
	}
}

// transmit writes one message to the slot: all chunks once, paced one per
// tick, then (for reliable sends) the ack/resend loop.
func (s *Socket) transmit(ctx context.Context, d *descriptor, ticks <-chan time.Duration) {
	frames, err := protocol.ChunkMessage(d.msgID, d.data)
	if err != nil {
		// Size was validated at Send time.
		util.LogError("chunking failed (msg=%d): %v", d.msgID, err)
		return
	}

	if d.opts.Reliable {
		s.mu.Lock()
		s.acks.track(d.msgID, s.clk.Now())
		s.mu.Unlock()
	}

	if !s.writeFrames(ctx, frames, ticks) {
		return
	}
	if !d.opts.Reliable {
		return
	}

	s.resendLoop(ctx, d, frames, ticks)
}

// writeFrames writes a chunk sequence to the local slot, pausing one tick
// between consecutive writes. Writing faster than the poll rate would
// coalesce intermediate chunks and silently lose data. Returns false when
// cancelled mid-sequence.
func (s *Socket) writeFrames(ctx context.Context, frames []*protocol.Frame, ticks <-chan time.Duration) bool {
	for i, f := range frames {
		if i > 0 && !s.waitTick(ctx, ticks) {
			return false
		}
		s.cfg.Channel.Write(s.cfg.Local, protocol.Pack(protocol.Encode(f)))
		util.Stats.AddFrameOut()
	}
	return true
}

// resendLoop waits for confirmation of a reliable send. Once per tick it
// evaluates, in priority order: enough confirmations → acked; elapsed time
// past AckTimeout → timed out (a normal outcome); elapsed time since the
// last retransmission past ResendInterval → retransmit everything and
// reset the resend clock. A vanished tracker entry means the send was
// cancelled (socket stop) and ends the loop the same way completion does.
func (s *Socket) resendLoop(ctx context.Context, d *descriptor, frames []*protocol.Frame, ticks <-chan time.Duration) {
	s.mu.Lock()
	_, start, tracked := s.acks.progress(d.msgID)
	s.mu.Unlock()
	if !tracked {
		return
	}
	lastResend := start

	for s.waitTick(ctx, ticks) {
		now := s.clk.Now()

		s.mu.Lock()
		count, _, tracked := s.acks.progress(d.msgID)
		s.mu.Unlock()
		if !tracked {
			return
		}

		if count >= d.opts.RequireAcks {
			s.finish(d.msgID)
			util.Stats.AddAcked()
			util.LogDebug("message %d acked by %d peer(s)", d.msgID, count)
			return
		}

		if now.Sub(start) >= d.opts.AckTimeout {
			s.finish(d.msgID)
			util.Stats.AddTimedOut()
			util.LogDebug("message %d timed out after %v (%d/%d acks)",
				d.msgID, now.Sub(start), count, d.opts.RequireAcks)
			return
		}

		if now.Sub(lastResend) >= d.opts.ResendInterval {
			if !s.writeFrames(ctx, frames, ticks) {
				break
			}
			lastResend = now
			util.Stats.AddResend()
		}
	}

	// Cancelled while waiting.
	s.finish(d.msgID)
}

// finish drops the ack tracking for a terminal message.
func (s *Socket) finish(msgID uint8) {
	s.mu.Lock()
	s.acks.drop(msgID)
	s.mu.Unlock()
}

// waitTick suspends until the next tick. Returns false when the socket is
// stopping instead.
func (s *Socket) waitTick(ctx context.Context, ticks <-chan time.Duration) bool {
	select {
	case <-ticks:
		return true
	case <-ctx.Done():
		return false
	}
}
