package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/pterm/pterm"

	"github.com/1ureka/slotcast/internal/channel"
	"github.com/1ureka/slotcast/internal/config"
	"github.com/1ureka/slotcast/internal/relay"
	"github.com/1ureka/slotcast/internal/socket"
	"github.com/1ureka/slotcast/internal/util"
)

// RunChat joins a relayed slot field and bridges it to the terminal:
//  1. Dial the relay and join the field
//  2. Start a socket over the mirrored slots
//  3. Print incoming messages; send stdin lines
//  4. Block until the relay drops or the user interrupts
func RunChat(ctx context.Context, cfg config.Config) error {
	// ── 1. Join the field ──────────────────────────────────────────────
	local := channel.PeerID(cfg.Name)
	ch, err := relay.Dial(ctx, cfg.RelayURL, cfg.Field, local)
	if err != nil {
		return err
	}
	defer ch.Close()
	util.LogInfo("joined field %q as %s (%d peers visible)", cfg.Field, local, len(ch.Peers()))

	// ── 2. Socket over the mirror ──────────────────────────────────────
	pace := channel.NewTickLoop(clock.New(), cfg.TickInterval)
	polls := channel.NewTickLoop(clock.New(), pollTick(cfg.TickInterval))
	pace.Start()
	polls.Start()
	defer pace.Stop()
	defer polls.Stop()

	s, err := socket.New(socket.Config{
		Local:        local,
		Channel:      ch,
		Peers:        ch,
		Ticks:        polls,
		SendTicks:    pace,
		PollInterval: cfg.PollInterval,
		Loopback:     cfg.Loopback,
	})
	if err != nil {
		return err
	}

	s.OnMessage(func(peer channel.PeerID, data []byte) {
		pterm.Info.Printfln("%s: %s", peer, string(data))
	})

	s.Start()
	defer s.Stop()

	util.StartStatsReporter(ctx)
	pterm.Success.Printfln("connected — type a line to broadcast it")

	// ── 3. Stdin → Send ────────────────────────────────────────────────
	opts := socket.SendOptions{
		Reliable:       cfg.Reliable,
		RequireAcks:    cfg.RequireAcks,
		AckTimeout:     cfg.AckTimeout,
		ResendInterval: cfg.ResendInterval,
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	// ── 4. Block until shutdown ────────────────────────────────────────
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if _, err := s.Send([]byte(text), opts); err != nil {
				util.LogWarning("send failed: %v", err)
			}

		case <-ch.Done():
			fmt.Println("relay connection lost")
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}
