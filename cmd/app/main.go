package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PortDelta/internal/di"
	"PortDelta/pkg/config"
	"PortDelta/pkg/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	once := flag.Bool("once", false, "run a single valuation round and exit")
	at := flag.String("at", "", "evaluate as of this instant; earlier days are priced from that day's extended session (RFC3339, unix seconds or exchange-local \"2006-01-02 15:04\"); implies -once")
	flag.Parse()

	if err := run(*configPath, *once, *at); err != nil {
		fmt.Fprintf(os.Stderr, "portdelta: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool, at string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	if once || at != "" {
		when := time.Now()
		if at != "" {
			t, ok := util.ParseTimeIn(at, cfg.Location())
			if !ok {
				return fmt.Errorf("invalid -at %q", at)
			}
			when = t
		}
		return app.Once(ctx, when)
	}
	return app.Run(ctx)
}
