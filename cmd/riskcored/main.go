// Command riskcored runs the blocklist lifecycle manager: it boots the
// index registry from the most recent on-disk snapshot (or an immediate
// fetch if none exists), then refreshes every 24 hours, retrying hourly on
// failure, until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskcore/riskcored/internal/eventbus"
	"github.com/riskcore/riskcored/internal/fetcher"
	"github.com/riskcore/riskcored/internal/loader"
	"github.com/riskcore/riskcored/internal/registry"
	"github.com/riskcore/riskcored/internal/riskconfig"
)

var (
	cfgPath     = flag.String("config", "", "Path to YAML config file")
	snapshotDir = flag.String("snapshot-dir", "", "Snapshot base directory (overrides config)")
	statsPeriod = flag.Duration("stats-interval", 5*time.Minute, "Interval for status log lines")
)

func main() {
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                                                              ║")
	fmt.Println("║                   riskcored - Risk Classifier                ║")
	fmt.Println("║                                                              ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	fileCfg, err := riskconfig.Load(*cfgPath)
	if err != nil {
		log.Error("loading config", "error", err)
		os.Exit(1)
	}
	cfg := riskconfig.Resolve(fileCfg, riskconfig.Overrides{SnapshotDir: *snapshotDir})

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Snapshot dir:   %s\n", cfg.SnapshotDir)
	fmt.Printf("  Feed overrides: %d\n", len(cfg.FeedURLs))
	fmt.Println()

	reg := registry.New()
	fetch := fetcher.New()
	defer fetch.Close()
	bus := eventbus.New(16)

	l := loader.New(reg, fetch, cfg.SnapshotDir, bus, loader.WithURLOverrides(cfg.FeedURLs), loader.WithLogger(log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.Boot(ctx)

	fmt.Println("Boot complete.")
	fmt.Println()

	go printStatus(l, *statsPeriod)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println()
	log.Info("shutting down")
	l.Stop()
}

func printStatus(l *loader.Loader, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		st := l.Status()
		slog.Info("loader status",
			"last_status", st.LastStatus,
			"update_count", st.UpdateCount,
			"last_update", st.LastUpdate,
			"next_update_at", st.NextUpdateAt,
		)
	}
}
