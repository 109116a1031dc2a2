// Slotrelay — standalone relay server.
//
// Hosts named slot fields over WebSocket so slotcast peers in different
// processes (or machines) can share one field. The relay only stores and
// fans out slot values; it knows nothing about the frames inside them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/1ureka/slotcast/internal/relay"
	"github.com/1ureka/slotcast/internal/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	port := flag.Int("port", 0, "Listen port (0 picks a random one)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.SetVerbosity(util.VerbosityDebug)
	}

	srv := relay.NewServer()
	assigned, err := srv.Start(*port)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	defer srv.Close()

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║           Slotcast Relay Server          ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Port : %-32d ║\n", assigned)
	fmt.Printf("║  URL  : %-32s ║\n", fmt.Sprintf("ws://localhost:%d/ws", assigned))
	fmt.Println("╚══════════════════════════════════════════╝")
	fmt.Println()

	<-ctx.Done()
	fmt.Println("relay shutting down")
}
