package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
	"mediagen/internal/pipeline"
	"mediagen/internal/presets"
	"mediagen/internal/providers/generation"
	"mediagen/internal/queue"
	"mediagen/internal/storage"
	"mediagen/internal/transcode"
)

// Container holds the wired services shared by the api and worker binaries.
type Container struct {
	Config *infra.Config
	Logger infra.Logger

	Jobs     domain.JobRepository
	Assets   domain.AssetRepository
	Store    storage.Uploader
	Provider *generation.Client
	Redis    *redis.Client

	Finalizer *pipeline.Finalizer
	Worker    *pipeline.Orchestrator
	Submit    *pipeline.SubmitService
	Status    *pipeline.StatusService
	Webhook   *pipeline.WebhookReceiver
	Trigger   pipeline.Trigger

	// Ping probes the job store; nil when there is nothing to probe.
	Ping func(context.Context) error

	runner  *infra.SQLRunner
	closers []func()
}

// Build wires every service from cfg. Callers must Close the container.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}
	if err := c.openStore(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.openObjectStore(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.openProvider(ctx); err != nil {
		c.Close()
		return nil, err
	}
	catalog, err := presets.Load(cfg.PresetsFile)
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := c.openTrigger(ctx); err != nil {
		c.Close()
		return nil, err
	}

	log := &c.Logger
	if c.Jobs != nil {
		c.Finalizer = pipeline.NewFinalizer(c.Jobs, c.Assets, c.Store, log)
		c.Worker = pipeline.NewOrchestrator(c.Jobs, c.Provider, c.Finalizer,
			transcode.NewFFmpeg(cfg.FFMPEGPath, log),
			pipeline.Options{
				PollInterval: cfg.PollInterval,
				PollBudget:   cfg.PollBudget,
				ScratchDir:   cfg.ScratchDir,
				ShotSeconds:  cfg.StoryShotSeconds,
				FadeSeconds:  cfg.StoryFadeSeconds,
			}, log)
		c.Status = pipeline.NewStatusService(c.Jobs, c.Assets, c.Finalizer, log)
	}
	c.Submit = pipeline.NewSubmitService(c.Jobs, pipeline.NewResolver(c.Store), catalog, c.Trigger, c.Provider, log)
	c.Webhook = pipeline.NewWebhookReceiver(c.Jobs, cfg.WebhookSecret, log)
	return c, nil
}

// Direct reports whether submissions bypass the job store.
func (c *Container) Direct() bool {
	return c.Jobs == nil
}

// Close releases every connection opened by Build.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *Container) openStore(ctx context.Context) error {
	switch c.Config.StoreMode {
	case infra.StoreModePostgres:
		pool, err := infra.NewDBPool(ctx, c.Config)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, pool.Close)
		runner := infra.NewSQLRunner(pool, c.Logger)
		c.runner = runner
		c.Jobs = repo.NewJobRepository(runner)
		c.Assets = repo.NewAssetRepository(runner)
		c.Ping = pool.Ping
	case infra.StoreModeMemory:
		mem := repo.NewMemoryStore()
		c.Jobs, c.Assets = mem, mem
		c.Logger.Warn().Msg("bootstrap: using in-memory job store; jobs are lost on restart")
	case infra.StoreModeNone:
		c.Logger.Warn().Msg("bootstrap: no job store configured; submissions go straight to the provider")
	}
	return nil
}

func (c *Container) openObjectStore(ctx context.Context) error {
	httpClient := &http.Client{Timeout: 2 * time.Minute}
	switch c.Config.StorageDriver {
	case "minio", "s3":
		ms, err := storage.NewMinioStore(storage.MinioOptions{
			Endpoint:   c.Config.MinioEndpoint,
			AccessKey:  c.Config.MinioAccessKey,
			SecretKey:  c.Config.MinioSecretKey,
			Bucket:     c.Config.MinioBucket,
			UseSSL:     c.Config.MinioUseSSL,
			Region:     c.Config.MinioRegion,
			PublicURL:  c.Config.StoragePublicURL,
			HTTPClient: httpClient,
		})
		if err != nil {
			return err
		}
		if err := ms.EnsureBucket(ctx); err != nil {
			return err
		}
		c.Store = ms
	case "filesystem", "local":
		path := c.Config.StoragePath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		fs, err := storage.NewFileStore(path, c.Config.StoragePublicURL, httpClient)
		if err != nil {
			return err
		}
		c.Store = fs
	default:
		return fmt.Errorf("bootstrap: unsupported STORAGE_DRIVER %q", c.Config.StorageDriver)
	}
	return nil
}

func (c *Container) openProvider(ctx context.Context) error {
	apiKey := strings.TrimSpace(c.Config.ProviderAPIKey)
	if apiKey == "" && c.runner != nil {
		stored, err := credentials.NewStore(c.runner).ProviderAPIKey(ctx)
		if err != nil {
			c.Logger.Warn().Err(err).Msg("bootstrap: failed to load provider api key from store")
		}
		apiKey = stored
	}
	if apiKey == "" {
		c.Logger.Warn().Msg("bootstrap: provider api key missing; upstream calls will be unauthenticated")
	}
	client, err := generation.NewClient(generation.Options{
		APIKey:         apiKey,
		BaseURL:        c.Config.ProviderBaseURL,
		StatusURL:      c.Config.ProviderStatusURL,
		Model:          c.Config.ProviderModel,
		ImageModel:     c.Config.ProviderImageModel,
		Steps:          c.Config.ProviderSteps,
		GuidanceScale:  c.Config.ProviderGuidance,
		Strength:       c.Config.ProviderStrength,
		CallbackURL:    c.Config.CallbackURL(),
		CallbackSecret: c.Config.WebhookSecret,
		Logger:         &c.Logger,
	})
	if err != nil {
		return err
	}
	c.Provider = client
	return nil
}

func (c *Container) openTrigger(ctx context.Context) error {
	if c.Jobs == nil {
		return nil
	}
	switch c.Config.TriggerMode {
	case infra.TriggerModeRedis:
		rdb, err := infra.NewRedisClient(ctx, c.Config)
		if err != nil {
			return err
		}
		c.Redis = rdb
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		c.Trigger = queue.NewRedisTrigger(rdb, c.Config.RedisQueueKey)
	case infra.TriggerModeHTTP:
		t := queue.NewHTTPTrigger(c.Config.PublicBaseURL+"/v1/worker", c.Config.InternalKey, nil, &c.Logger)
		c.Trigger = t
		c.closers = append(c.closers, t.Wait)
	default:
		return errors.New("bootstrap: unsupported trigger mode")
	}
	return nil
}

// Consumer returns a redis consumer feeding the orchestrator, or nil when
// the trigger is not redis-backed.
func (c *Container) Consumer() *queue.RedisConsumer {
	if c.Redis == nil || c.Worker == nil {
		return nil
	}
	return queue.NewRedisConsumer(c.Redis, c.Config.RedisQueueKey, c.Worker, c.Config.WorkerConcurrency, &c.Logger)
}

// Sweeper re-triggers jobs left queued, or nil without a job store.
func (c *Container) Sweeper() *queue.Sweeper {
	if c.Jobs == nil || c.Trigger == nil {
		return nil
	}
	return queue.NewSweeper(c.Jobs, c.Trigger, c.Config.SweepInterval, c.Config.SweepStaleAfter, &c.Logger)
}
