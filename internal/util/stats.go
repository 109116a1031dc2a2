package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide protocol counter.
var Stats = &stats{}

type stats struct {
	FramesOut  atomic.Int64 // frames written to the local slot
	FramesIn   atomic.Int64 // changed slot values observed while polling
	Delivered  atomic.Int64 // fully reassembled messages handed to handlers
	AcksSent   atomic.Int64 // ACK frames emitted for completed messages
	AcksIn     atomic.Int64 // ACK frames accepted for tracked messages
	Resends    atomic.Int64 // full-sequence retransmissions
	Acked      atomic.Int64 // reliable sends confirmed in time
	TimedOut   atomic.Int64 // reliable sends that exhausted their timeout
}

func (s *stats) AddFrameOut() { s.FramesOut.Add(1) }
func (s *stats) AddFrameIn() { s.FramesIn.Add(1) }
func (s *stats) AddDelivered() { s.Delivered.Add(1) }
func (s *stats) AddAckSent() { s.AcksSent.Add(1) }
func (s *stats) AddAckIn() { s.AcksIn.Add(1) }
func (s *stats) AddResend() { s.Resends.Add(1) }
func (s *stats) AddAcked() { s.Acked.Add(1) }
func (s *stats) AddTimedOut() { s.TimedOut.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs protocol statistics
// every 10 seconds. Quiet periods produce no output. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevOut, prevIn, prevMsg int64
		for {
			select {
			case <-ticker.C:
				out := Stats.FramesOut.Load()
				in := Stats.FramesIn.Load()
				msg := Stats.Delivered.Load()

				if out != prevOut || in != prevIn || msg != prevMsg {
					logger.Info(formatStats(out-prevOut, in-prevIn, msg-prevMsg))
				}

				prevOut = out
				prevIn = in
				prevMsg = msg

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a one-line summary of activity in the last interval
// plus the cumulative reliable-send outcomes.
func formatStats(out, in, msg int64) string {
	return fmt.Sprintf("Frames: %d↑ %d↓ | Msgs: %d | Acked: %d | Timeout: %d | Resent: %d",
		out,
		in,
		msg,
		Stats.Acked.Load(),
		Stats.TimedOut.Load(),
		Stats.Resends.Load(),
	)
}
