package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PabloGalante/chatrelay/internal/adapters/cli"
	"github.com/PabloGalante/chatrelay/internal/adapters/gateway"
	"github.com/PabloGalante/chatrelay/internal/app/chatsession"
	"github.com/PabloGalante/chatrelay/internal/config"
	"github.com/PabloGalante/chatrelay/internal/observability"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	defaultURL := cfg.GatewayURL
	if defaultURL == "" {
		defaultURL = "http://localhost:" + cfg.Port
	}
	url := flag.String("url", defaultURL, "base URL of a running chatrelay API")
	flag.Parse()

	// keep the terminal for the conversation
	observability.SetOutput(os.Stderr)
	observability.SetLevel("error")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := chatsession.NewStore(gateway.NewClient(*url),
		chatsession.WithInitialThreads(cfg.InitialThreads...),
		chatsession.WithPlaceholder(cfg.PlaceholderText),
		chatsession.WithRequestTimeout(cfg.RequestTimeout),
	)

	if err := cli.NewREPL(store, os.Stdout).Run(ctx, os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
