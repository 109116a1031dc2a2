// Package app contains the top-level orchestration for the sim and chat
// modes.
package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pterm/pterm"

	"github.com/1ureka/slotcast/internal/channel"
	"github.com/1ureka/slotcast/internal/config"
	"github.com/1ureka/slotcast/internal/socket"
	"github.com/1ureka/slotcast/internal/util"
)

// simPeerCount is how many peers the simulation spins up.
const simPeerCount = 3

// pollTick derives the receive poll period from the send pacing period.
// Polling several times per pacing tick keeps phase jitter between a write
// and a poll on the same edge from costing a chunk.
func pollTick(pace time.Duration) time.Duration {
	p := pace / 5
	if p < time.Millisecond {
		p = time.Millisecond
	}
	return p
}

var simPhrases = []string{
	"ping",
	"the slot is the message",
	"nine bytes ought to be enough",
	"coalesce me if you can",
}

// RunSim runs an in-process demonstration:
//  1. Build an in-memory hub and a shared tick loop
//  2. Start one socket per simulated peer
//  3. Let peers broadcast at random until shutdown
//
// Every delivery is printed, so the chunking, pacing and ack behavior is
// visible at human speed.
func RunSim(ctx context.Context, cfg config.Config) error {
	// ── 1. Shared substrate ────────────────────────────────────────────
	hub := channel.NewHub()
	pace := channel.NewTickLoop(clock.New(), cfg.TickInterval)
	polls := channel.NewTickLoop(clock.New(), pollTick(cfg.TickInterval))
	pace.Start()
	polls.Start()
	defer pace.Stop()
	defer polls.Stop()

	util.StartStatsReporter(ctx)

	// ── 2. One socket per simulated peer ───────────────────────────────
	sockets := make([]*socket.Socket, 0, simPeerCount)
	names := make([]channel.PeerID, 0, simPeerCount)

	for i := 1; i <= simPeerCount; i++ {
		name := channel.PeerID(fmt.Sprintf("sim-%d", i))
		hub.Join(name)

		s, err := socket.New(socket.Config{
			Local:        name,
			Channel:      hub,
			Peers:        hub,
			Ticks:        polls,
			SendTicks:    pace,
			PollInterval: cfg.PollInterval,
			Loopback:     cfg.Loopback,
		})
		if err != nil {
			return fmt.Errorf("creating socket for %s: %w", name, err)
		}

		local := name
		s.OnMessage(func(peer channel.PeerID, data []byte) {
			pterm.Info.Printfln("%s ← %s: %q", local, peer, string(data))
		})

		s.Start()
		defer s.Stop()
		sockets = append(sockets, s)
		names = append(names, name)
	}

	pterm.Success.Printfln("simulation running: %d peers on one slot field", simPeerCount)

	// ── 3. Random chatter until shutdown ───────────────────────────────
	opts := socket.SendOptions{
		Reliable:       cfg.Reliable,
		RequireAcks:    cfg.RequireAcks,
		AckTimeout:     cfg.AckTimeout,
		ResendInterval: cfg.ResendInterval,
	}

	for {
		select {
		case <-time.After(time.Second):
			i := rand.IntN(len(sockets))
			text := simPhrases[rand.IntN(len(simPhrases))]
			id, err := sockets[i].Send([]byte(text), opts)
			if err != nil {
				util.LogWarning("%s send failed: %v", names[i], err)
				continue
			}
			util.LogDebug("%s sent message %d: %q", names[i], id, text)

		case <-ctx.Done():
			fmt.Println("simulation stopped")
			return nil
		}
	}
}
