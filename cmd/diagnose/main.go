// Command diagnose inspects a running deployment's queue state and
// configuration from the outside: it opens the same job store the server
// uses, summarizes queue health, and flags missing provider credentials.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"vividflow/internal/domain"
	"vividflow/internal/infra"
	"vividflow/internal/store/postgres"
	"vividflow/internal/store/sqlite"
)

func main() {
	scanLimit := flag.Int("scan", 500, "max jobs to scan for the summary")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "store:", err)
		os.Exit(1)
	}
	defer closeStore()

	failed := 0
	if !queueSummary(ctx, store, *scanLimit) {
		failed++
	}
	if !configSummary(cfg) {
		failed++
	}

	if failed > 0 {
		fmt.Printf("\n%d check(s) reported problems\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nall checks passed")
}

func openStore(ctx context.Context, cfg *infra.Config) (domain.JobStore, func(), error) {
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(pool), pool.Close, nil
	}
	st, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

func queueSummary(ctx context.Context, store domain.JobStore, scanLimit int) bool {
	fmt.Println("== queue ==")

	jobs, err := store.ListAll(ctx, scanLimit)
	if err != nil {
		fmt.Println("  list failed:", err)
		return false
	}

	counts := map[domain.JobStatus]int{}
	for _, j := range jobs {
		counts[j.Status]++
	}
	for _, st := range []domain.JobStatus{
		domain.JobStatusQueued, domain.JobStatusProcessing, domain.JobStatusCompleted,
		domain.JobStatusFailed, domain.JobStatusCancelled,
	} {
		fmt.Printf("  %-12s %d\n", st, counts[st])
	}

	healthy := true
	if queued, err := store.ListOldestQueued(ctx, 1); err == nil && len(queued) > 0 {
		wait := time.Since(queued[0].CreatedAt).Round(time.Second)
		fmt.Printf("  oldest queued job waiting %s (%s)\n", wait, queued[0].ID)
		// A queued job older than ten minutes usually means the worker died.
		if wait > 10*time.Minute {
			fmt.Println("  WARNING: queue appears stalled")
			healthy = false
		}
	}

	if stuck, err := store.ListProcessing(ctx); err == nil {
		for _, j := range stuck {
			if age := time.Since(j.UpdatedAt); age > 30*time.Minute {
				fmt.Printf("  WARNING: job %s processing for %s\n", j.ID, age.Round(time.Second))
				healthy = false
			}
		}
	}
	return healthy
}

func configSummary(cfg *infra.Config) bool {
	fmt.Println("== config ==")
	fmt.Printf("  storage backend: %s\n", cfg.StorageBackend)
	fmt.Printf("  concurrency limit: %d\n", cfg.GlobalConcurrencyLimit)

	ok := true
	if cfg.RunpodAPIKey == "" || cfg.RunpodEndpointID == "" {
		fmt.Println("  WARNING: RunPod credentials missing, wan2.1 jobs will fail")
		ok = false
	}
	if cfg.GeminiAPIKey == "" {
		fmt.Println("  WARNING: GEMINI_API_KEY missing, veo3.1 jobs will fail")
		ok = false
	}
	if cfg.GroqAPIKey == "" {
		fmt.Println("  note: GROQ_API_KEY missing, prompt enhancement falls back to static rules")
	}
	return ok
}
