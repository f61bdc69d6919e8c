package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/infra"
)

func testConfig(t *testing.T, storeMode string) *infra.Config {
	t.Helper()
	return &infra.Config{
		AppEnv:            "test",
		StoreMode:         storeMode,
		TriggerMode:       infra.TriggerModeHTTP,
		InternalKey:       "internal",
		PublicBaseURL:     "http://localhost:8080",
		ProviderBaseURL:   "http://provider.test/v1",
		PollInterval:      time.Second,
		PollBudget:        time.Minute,
		StorageDriver:     "filesystem",
		StoragePath:       t.TempDir(),
		StoragePublicURL:  "https://cdn.mediagen.test/media",
		ScratchDir:        t.TempDir(),
		FFMPEGPath:        "ffmpeg",
		WorkerConcurrency: 2,
		SweepInterval:     time.Minute,
		SweepStaleAfter:   time.Minute,
	}
}

func TestBuildMemoryStore(t *testing.T) {
	c, err := Build(context.Background(), testConfig(t, infra.StoreModeMemory), zerolog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	if c.Direct() {
		t.Fatal("memory store must not run in direct mode")
	}
	if c.Worker == nil || c.Status == nil || c.Finalizer == nil || c.Trigger == nil {
		t.Fatalf("pipeline services not wired: %+v", c)
	}
	if c.Sweeper() == nil {
		t.Fatal("expected a sweeper with a job store")
	}
	if c.Consumer() != nil {
		t.Fatal("http trigger mode has no redis consumer")
	}
}

func TestBuildWithoutStoreIsDirect(t *testing.T) {
	c, err := Build(context.Background(), testConfig(t, infra.StoreModeNone), zerolog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	if !c.Direct() {
		t.Fatal("expected direct mode")
	}
	if c.Worker != nil || c.Trigger != nil || c.Sweeper() != nil {
		t.Fatal("direct mode must not wire background processing")
	}
	if c.Submit == nil || c.Webhook == nil {
		t.Fatal("submission and webhook services are always wired")
	}
}

func TestBuildRejectsUnknownStorageDriver(t *testing.T) {
	cfg := testConfig(t, infra.StoreModeMemory)
	cfg.StorageDriver = "ftp"
	if _, err := Build(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}
