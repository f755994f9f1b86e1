package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/priceboard/pricecore/internal/apperr"
	"github.com/priceboard/pricecore/internal/config"
	"github.com/priceboard/pricecore/internal/gateway"
	"github.com/priceboard/pricecore/internal/health"
	"github.com/priceboard/pricecore/internal/presence"
	"github.com/priceboard/pricecore/internal/store"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg, err := config.LoadPresence(os.Args[1:])
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	log.Printf("presence worker starting for %s", cfg.Asset)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	st, err := store.New(ctx, cfg.StoreURI)
	if err != nil {
		log.Fatalf("store connection failed: %v", err)
	}
	defer st.Close(context.Background())

	gw := gateway.NewWSGateway(cfg.GatewayURL, cfg.Token)

	worker := presence.NewWorker(cfg.Asset, cfg.Token, cfg.GatewayURL, st, gw, cfg.UpdateInterval, cfg.FetchInterval)
	worker.SnapshotPath = cfg.SnapshotPath

	srv := health.Serve(worker.Status, cfg.HealthPort, nil)
	log.Printf("health endpoint listening on :%d/health", cfg.HealthPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		var fatal *apperr.Fatal
		if errors.As(err, &fatal) {
			log.Fatalf("presence worker exiting fatally: %v", err)
		}
		log.Fatalf("presence worker stopped: %v", err)
	}
	log.Printf("presence worker stopped for %s", cfg.Asset)
}
