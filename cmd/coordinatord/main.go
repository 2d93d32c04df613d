// Command coordinatord runs the task/worker/runner coordination kernel:
// the Claim Engine, Task Store, Runner Registry, Recurring Scheduler,
// Stale Recovery Checker, and their HTTP surface, all sharing one SQLite
// database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buildd-ai/coordinatord/internal/accounts"
	"github.com/buildd-ai/coordinatord/internal/api"
	"github.com/buildd-ai/coordinatord/internal/config"
	"github.com/buildd-ai/coordinatord/internal/dispatch"
	"github.com/buildd-ai/coordinatord/internal/reassign"
	"github.com/buildd-ai/coordinatord/internal/schedule"
	"github.com/buildd-ai/coordinatord/internal/store"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (optional; env vars and defaults fill gaps)")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[COORDINATORD] config error: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("[COORDINATORD] failed to open database: %v", err)
	}
	defer db.Close()

	var outbox *dispatch.Outbox
	if db != nil {
		outbox = dispatch.NewOutbox(db)
	}
	bus := dispatch.NewBus(outbox)
	go bus.Run()

	if cfg.NATSUrl != "" {
		bridge, err := dispatch.NewNATSBridge(cfg.NATSUrl, bus)
		if err != nil {
			log.Printf("[COORDINATORD] NATS bridge disabled, failed to connect to %s: %v", cfg.NATSUrl, err)
		} else {
			if err := bridge.SubscribeAll(); err != nil {
				log.Printf("[COORDINATORD] NATS bridge failed to subscribe: %v", err)
			}
			bus.SetMirror(func(event dispatch.Event) {
				if err := bridge.PublishRemote(event); err != nil {
					log.Printf("[COORDINATORD] failed to mirror event %s to NATS: %v", event.Type, err)
				}
			})
			defer bridge.Close()
			log.Printf("[COORDINATORD] cross-process dispatch mirrored over NATS at %s", cfg.NATSUrl)
		}
	}

	accountStore := accounts.NewStore(db)

	srv := api.New(db, accountStore, accountStore, bus, cfg.ClaimLeaseTTL)

	staleChecker := reassign.NewChecker(db, bus)
	stopStale := make(chan struct{})
	go staleChecker.Run(stopStale)

	scheduler := schedule.NewScheduler(db, bus)
	stopScheduler := make(chan struct{})
	go scheduler.Run(stopScheduler)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[COORDINATORD] listening on :%d (db=%s)", cfg.Port, cfg.DBPath)
		serverErr <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("[COORDINATORD] server failed: %v", err)
		}
	case sig := <-shutdown:
		log.Printf("[COORDINATORD] received %s, shutting down", sig)
	}

	close(stopStale)
	close(stopScheduler)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[COORDINATORD] graceful shutdown error: %v", err)
	}
}
