package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
)

func main() {
	var (
		idFlag     string
		actionFlag string
		reasonFlag string
		olderFlag  time.Duration
		limitFlag  int
		keyFlag    string
	)
	flag.StringVar(&idFlag, "id", "", "job ID (UUID)")
	flag.StringVar(&actionFlag, "action", "show", "action to run (show, fail, stale, set-key)")
	flag.StringVar(&keyFlag, "key", "", "provider API key for -action set-key (fallbacks to PROVIDER_API_KEY)")
	flag.StringVar(&reasonFlag, "reason", "canceled by operator", "failure reason recorded by -action fail")
	flag.DurationVar(&olderFlag, "older-than", 10*time.Minute, "age threshold for -action stale")
	flag.IntVar(&limitFlag, "limit", 50, "maximum rows for -action stale")
	flag.Parse()

	action := strings.TrimSpace(strings.ToLower(actionFlag))
	jobID := strings.TrimSpace(idFlag)
	switch action {
	case "show", "fail":
		if jobID == "" {
			exitWithError(errors.New("-id is required"))
		}
	case "stale":
	case "set-key":
		if strings.TrimSpace(keyFlag) == "" {
			keyFlag = os.Getenv("PROVIDER_API_KEY")
		}
		if strings.TrimSpace(keyFlag) == "" {
			exitWithError(errors.New("provider API key is required via -key or environment"))
		}
	default:
		exitWithError(fmt.Errorf("unsupported action %q", actionFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "jobctl").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobRepository(runner)
	assets := repo.NewAssetRepository(runner)

	switch action {
	case "show":
		job, err := jobs.Get(ctx, jobID)
		if err != nil {
			exitWithError(fmt.Errorf("failed to load job: %w", err))
		}
		out := map[string]any{"job": job}
		if job.ProviderPersisted {
			if asset, err := assets.GetBySourceJob(ctx, jobID); err == nil {
				out["asset"] = asset
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	case "fail":
		err := jobs.MarkFailed(ctx, jobID, domain.TruncateError(reasonFlag))
		switch {
		case errors.Is(err, domain.ErrAlreadyTerminal):
			fmt.Printf("job %s is already terminal\n", jobID)
		case err != nil:
			exitWithError(fmt.Errorf("failed to mark job failed: %w", err))
		default:
			fmt.Printf("job %s marked failed\n", jobID)
		}
	case "stale":
		ids, err := jobs.ListStaleQueued(ctx, time.Now().Add(-olderFlag), limitFlag)
		if err != nil {
			exitWithError(fmt.Errorf("failed to list stale jobs: %w", err))
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		fmt.Fprintf(os.Stderr, "%d queued job(s) older than %s\n", len(ids), olderFlag)
	case "set-key":
		if err := credentials.NewStore(runner).SetProviderAPIKey(ctx, keyFlag); err != nil {
			exitWithError(fmt.Errorf("failed to persist provider api key: %w", err))
		}
		fmt.Println("provider API key stored successfully")
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
