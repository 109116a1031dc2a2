package channel

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TickLoop is the reference Scheduler: a single goroutine fires once per
// interval and fans the tick out to every subscriber. Built on clock.Clock
// so tests can drive it with a mock clock.
type TickLoop struct {
	clk      clock.Clock
	interval time.Duration

	mu     sync.Mutex
	subs   map[int]chan time.Duration
	nextID int
	stop   chan struct{}
	done   chan struct{}
}

// NewTickLoop creates a stopped tick loop firing at the given interval.
func NewTickLoop(clk clock.Clock, interval time.Duration) *TickLoop {
	return &TickLoop{
		clk:      clk,
		interval: interval,
		subs:     make(map[int]chan time.Duration),
	}
}

// Start launches the tick goroutine. Starting an already-running loop is a
// no-op.
func (l *TickLoop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stop, l.done)
}

// Stop halts the tick goroutine and waits for it to exit. Subscriptions
// survive a Stop/Start cycle.
func (l *TickLoop) Stop() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Subscribe registers a tick receiver. Each tick carries the elapsed time
// since the previous one. The returned cancel function releases the
// subscription; it is safe to call more than once.
func (l *TickLoop) Subscribe() (<-chan time.Duration, func()) {
	ch := make(chan time.Duration, 1)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
	return ch, cancel
}

// run is the single tick goroutine. Delivery is non-blocking: a subscriber
// that has not consumed the previous tick simply sees the ticks coalesce,
// mirroring what the slot channel itself does to fast writers.
func (l *TickLoop) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := l.clk.Ticker(l.interval)
	defer ticker.Stop()

	last := l.clk.Now()
	for {
		select {
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			l.mu.Lock()
			for _, ch := range l.subs {
				select {
				case ch <- dt:
				default:
				}
			}
			l.mu.Unlock()

		case <-stop:
			return
		}
	}
}
