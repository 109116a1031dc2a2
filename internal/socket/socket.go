// Package socket implements reliable-enough messaging over polled shared
// slots: chunked 9-byte frames written into the local peer's slot, observed
// by remote pollers, reassembled per sender, and optionally confirmed
// through an ack/resend loop. One Socket owns all of its protocol state;
// nothing is shared across instances.
package socket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/1ureka/slotcast/internal/channel"
	"github.com/1ureka/slotcast/internal/protocol"
	"github.com/1ureka/slotcast/internal/util"
)

// ErrInvalidConfig is wrapped by every configuration error New returns.
var ErrInvalidConfig = errors.New("invalid socket config")

// Handler receives one fully reassembled message and the peer it came from.
// The byte slice is owned by the handler; the socket never reuses it.
type Handler func(peer channel.PeerID, data []byte)

// Config wires a Socket to its collaborators.
type Config struct {
	Local   channel.PeerID    // identity of the slot this socket writes
	Channel channel.Adapter   // slot read/write primitive
	Peers   channel.Directory // current membership, used for polling and pruning
	Ticks   channel.Scheduler // drives polling and, unless SendTicks is set, send pacing

	// SendTicks, when set, paces the send worker on its own schedule so
	// writes can run slower than polls. Nil shares Ticks.
	SendTicks channel.Scheduler

	// Clock supplies time for staleness and timeout decisions.
	// Nil selects the wall clock.
	Clock clock.Clock

	// PollInterval throttles polling to at most once per interval.
	// Zero polls on every tick.
	PollInterval time.Duration

	// Loopback delivers sent messages synchronously to local handlers:
	// a sender never observes its own slot as a receiver.
	Loopback bool
}

// Socket is one endpoint of the slot messaging protocol.
type Socket struct {
	cfg       Config
	clk       clock.Clock
	sendTicks channel.Scheduler
	localHash uint16

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	started  bool
	handlers []Handler
	reasm    *reassemblyTable
	acks     *ackTracker
	lastSeen map[channel.PeerID]channel.Value
	lastPoll time.Time
	queue    []*descriptor
	workerUp bool
}

// New validates cfg and creates a stopped Socket.
func New(cfg Config) (*Socket, error) {
	switch {
	case cfg.Local == "":
		return nil, fmt.Errorf("%w: missing local peer id", ErrInvalidConfig)
	case cfg.Channel == nil:
		return nil, fmt.Errorf("%w: missing channel adapter", ErrInvalidConfig)
	case cfg.Peers == nil:
		return nil, fmt.Errorf("%w: missing peer directory", ErrInvalidConfig)
	case cfg.Ticks == nil:
		return nil, fmt.Errorf("%w: missing scheduler", ErrInvalidConfig)
	case cfg.PollInterval < 0:
		return nil, fmt.Errorf("%w: negative poll interval", ErrInvalidConfig)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	sendTicks := cfg.SendTicks
	if sendTicks == nil {
		sendTicks = cfg.Ticks
	}

	return &Socket{
		cfg:       cfg,
		clk:       clk,
		sendTicks: sendTicks,
		localHash: protocol.PeerHash16(cfg.Local),
		reasm:     newReassemblyTable(),
		acks:      newAckTracker(),
		lastSeen:  make(map[channel.PeerID]channel.Value),
	}, nil
}

// OnMessage registers a handler for reassembled messages. Handlers are
// invoked in registration order; a panicking handler is logged and the
// remaining handlers still run.
func (s *Socket) OnMessage(fn Handler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

// Start launches the poll loop. Starting a running socket is a no-op.
func (s *Socket) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.lastPoll = time.Time{}

	ticks, unsub := s.cfg.Ticks.Subscribe()
	s.wg.Add(1)
	go s.runReceiver(s.ctx, ticks, unsub)
}

// Stop clears the pending queue, cancels any in-flight reliable loop, and
// waits for the poll and worker goroutines to exit. The socket can be
// started again afterwards.
func (s *Socket) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.queue = nil
	s.acks.clear() // resend loops observe this and exit early
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// deliver invokes every registered handler with a reassembled message.
// Each handler is isolated: a panic is recovered and logged so the rest of
// the handlers and the protocol state stay unaffected.
func (s *Socket) deliver(peer channel.PeerID, data []byte) {
	s.mu.Lock()
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					util.LogError("message handler panicked (peer=%s): %v", peer, r)
				}
			}()
			fn(peer, data)
		}()
	}
	util.Stats.AddDelivered()
}
