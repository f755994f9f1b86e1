package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/priceboard/pricecore/internal/archive"
	"github.com/priceboard/pricecore/internal/config"
	"github.com/priceboard/pricecore/internal/downsample"
	"github.com/priceboard/pricecore/internal/health"
	"github.com/priceboard/pricecore/internal/store"
)

const archiveMaxGB = 10

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("downsampler starting")

	cfg, err := config.LoadDownsampler(os.Args[1:])
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

	var archiver *archive.Archiver
	if cfg.ArchiveDir != "" {
		archiver = archive.New(st.DB(), cfg.ArchiveDir, archiveMaxGB)
		log.Printf("T3 archival enabled: %s", cfg.ArchiveDir)
	}

	status := health.NewAssetless()
	ds := downsample.New(st, cfg.CleanInterval, status, archiver)

	extra := map[string]http.HandlerFunc{"GET /api/health/detail": status.DetailHandler()}
	srv := health.Serve(status, cfg.HealthPort, extra)
	log.Printf("health endpoint listening on :%d/health", cfg.HealthPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	ds.Run(ctx)
	log.Println("downsampler stopped")
}
