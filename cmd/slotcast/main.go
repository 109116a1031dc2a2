// Slotcast — CLI entry point.
//
// Reliable-enough messaging over a severely constrained shared channel:
// every peer owns one 72-bit slot that others can only poll. This tool runs
// either an in-process simulation (sim mode) or an interactive chat over a
// relayed slot field (chat mode).
//
// Settings come from CLI flags, optionally overlaid on a TOML file
// (-config).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/slotcast/internal/app"
	"github.com/1ureka/slotcast/internal/config"
	"github.com/1ureka/slotcast/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	mode := flag.String("mode", "", "Run mode: sim or chat")
	configPath := flag.String("config", "", "Path to a TOML config file")
	name := flag.String("name", "", "Peer name (chat mode)")
	field := flag.String("field", "", "Slot field name")
	relayURL := flag.String("relay", "", "Relay WebSocket URL, e.g. ws://host:port/ws (chat mode)")
	tick := flag.Duration("tick", 0, "Scheduler tick interval (e.g. 50ms)")
	reliable := flag.Bool("reliable", false, "Send with the ack/resend loop")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.SetVerbosity(util.VerbosityDebug)
	}

	pterm.Info.Println(fmt.Sprintf("Slotcast — v%s", version))
	pterm.Println()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags override file values.
	if *mode != "" {
		cfg.Mode = config.Mode(*mode)
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *field != "" {
		cfg.Field = *field
	}
	if *relayURL != "" {
		cfg.RelayURL = *relayURL
	}
	if *tick > 0 {
		cfg.TickInterval = *tick
	}
	if *reliable {
		cfg.Reliable = true
	}

	var err error
	switch cfg.Mode {
	case config.ModeSim:
		err = app.RunSim(ctx, cfg)

	case config.ModeChat:
		if cfg.Name == "" {
			cfg.Name = fmt.Sprintf("peer-%d", time.Now().UnixNano()%1000)
		}
		if cfg.RelayURL == "" {
			util.LogError("chat mode needs -relay (or relay_url in the config file)")
			os.Exit(1)
		}
		err = app.RunChat(ctx, cfg)

	default:
		util.LogError("unknown mode %q (expected sim or chat)", cfg.Mode)
		os.Exit(1)
	}

	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
