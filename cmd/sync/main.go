package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"marketpulse-api/internal/cli"
	"marketpulse-api/internal/config"
	"marketpulse-api/internal/ingest"
	"marketpulse-api/internal/svc"
)

const shutdownTimeout = 10 * time.Second

var configFile = flag.String("f", "etc/marketpulse.yaml", "the config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting sync daemon...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load config: %v", err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("  - %s", line)
	}

	svcCtx := svc.NewServiceContext(*cfg, *configFile)
	if svcCtx.Orchestrator == nil {
		log.Fatal("[main] Sync daemon needs Postgres and a market provider configured")
	}

	interval := time.Duration(cfg.Sync.IntervalMin) * time.Minute
	log.Printf("[main] Sync interval: %s, watchlist: %d codes", interval, len(cfg.Sync.Codes))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runSyncLoop(ctx, svcCtx, interval)
	}()

	log.Println("[main] Sync daemon started. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping tasks...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All tasks stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Sync daemon stopped")
}

// runSyncLoop runs one batch immediately, then one per tick until ctx ends.
func runSyncLoop(ctx context.Context, svcCtx *svc.ServiceContext, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runBatch(ctx, svcCtx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[sync] Stopping sync loop")
			return
		case <-ticker.C:
			runBatch(ctx, svcCtx)
		}
	}
}

func runBatch(ctx context.Context, svcCtx *svc.ServiceContext) {
	if ctx.Err() != nil {
		return
	}

	codes, err := resolveCodes(ctx, svcCtx)
	if err != nil {
		log.Printf("[sync] [ERROR] resolving watchlist: %v", err)
		return
	}
	if len(codes) == 0 {
		log.Println("[sync] [WARN] no codes to sync; configure Sync.Codes or seed instruments")
		return
	}

	start := time.Now()
	result, err := svcCtx.Orchestrator.Sync(ctx, codes, ingest.Options{Trigger: "schedule"})
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("[sync] [ERROR] %v, took %dms", err, elapsed.Milliseconds())
		return
	}

	log.Printf("[sync] [OK] requested=%d succeeded=%d failed=%d bars=%d quotes=%d, took %dms",
		result.Requested, len(result.Succeeded), len(result.Failed),
		result.BarsWritten, result.QuotesStored, elapsed.Milliseconds())
	for code, msg := range result.Failed {
		log.Printf("  - %s: %s", code, msg)
	}
}

// resolveCodes prefers the configured watchlist; with none configured it
// re-syncs every instrument already known to the store.
func resolveCodes(ctx context.Context, svcCtx *svc.ServiceContext) ([]string, error) {
	if len(svcCtx.Config.Sync.Codes) > 0 {
		return svcCtx.Config.Sync.Codes, nil
	}
	active, err := svcCtx.InstrumentsModel.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(active))
	for _, inst := range active {
		codes = append(codes, inst.Code)
	}
	return codes, nil
}
