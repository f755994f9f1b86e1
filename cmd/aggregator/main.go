package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/priceboard/pricecore/internal/aggregator"
	"github.com/priceboard/pricecore/internal/config"
	"github.com/priceboard/pricecore/internal/health"
	"github.com/priceboard/pricecore/internal/oracle"
	"github.com/priceboard/pricecore/internal/store"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("aggregator starting")

	cfg, err := config.LoadAggregator(os.Args[1:])
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

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

	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("store migration failed: %v", err)
	}

	oracleClient := oracle.New(cfg.OracleURL)
	status := health.NewAssetless()

	agg := aggregator.New(cfg.Assets, oracleClient, st, cfg.SnapshotPath, cfg.FetchInterval, status)

	extra := map[string]http.HandlerFunc{"GET /api/health/detail": status.DetailHandler()}
	srv := health.Serve(status, cfg.HealthPort, extra)
	log.Printf("health endpoint listening on :%d/health", cfg.HealthPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := agg.RunUntilFirstSuccess(ctx); err != nil {
		log.Fatalf("aggregator failed to complete a startup cycle: %v", err)
	}
	log.Println("aggregator: startup cycle complete, entering steady state")

	if err := agg.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("aggregator stopped: %v", err)
	}
	log.Println("aggregator stopped")
}
