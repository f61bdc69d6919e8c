package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store modes.
const (
	StoreModePostgres = "postgres"
	StoreModeMemory   = "memory"
	StoreModeNone     = "none"
)

// Trigger modes.
const (
	TriggerModeHTTP  = "http"
	TriggerModeRedis = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	DBMaxConns  int
	StoreMode   string
	JWTSecret   string

	// InternalKey guards the worker trigger endpoint.
	InternalKey   string
	WebhookSecret string
	// PublicBaseURL is this service's externally reachable URL, used for
	// provider callbacks and the HTTP worker trigger.
	PublicBaseURL string

	ProviderBaseURL    string
	ProviderStatusURL  string
	ProviderAPIKey     string
	ProviderModel      string
	ProviderImageModel string
	ProviderSteps      int
	ProviderGuidance   float64
	ProviderStrength   float64
	PollInterval       time.Duration
	PollBudget         time.Duration

	StorageDriver    string
	StoragePath      string
	StoragePublicURL string
	MinioEndpoint    string
	MinioAccessKey   string
	MinioSecretKey   string
	MinioBucket      string
	MinioUseSSL      bool
	MinioRegion      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisQueueKey string
	TriggerMode   string
	// WorkerConcurrency bounds jobs processed at once by a queue consumer.
	WorkerConcurrency int
	// EmbeddedWorker runs the queue consumer inside the API process.
	EmbeddedWorker bool

	SweepInterval   time.Duration
	SweepStaleAfter time.Duration

	FFMPEGPath       string
	ScratchDir       string
	StoryShotSeconds float64
	StoryFadeSeconds float64

	PresetsFile string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		StoreMode:   strings.ToLower(getEnv("STORE_MODE", StoreModePostgres)),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		InternalKey:   os.Getenv("INTERNAL_KEY"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		ProviderBaseURL:    strings.TrimRight(getEnv("PROVIDER_BASE_URL", "https://api.provider.example/v1"), "/"),
		ProviderStatusURL:  strings.TrimRight(os.Getenv("PROVIDER_STATUS_URL"), "/"),
		ProviderAPIKey:     os.Getenv("PROVIDER_API_KEY"),
		ProviderModel:      getEnv("PROVIDER_MODEL", "img2img-xl"),
		ProviderImageModel: getEnv("PROVIDER_IMAGE_MODEL", "txt2img-xl"),
		ProviderSteps:      getEnvInt("PROVIDER_STEPS", 30),
		ProviderGuidance:   getEnvFloat("PROVIDER_GUIDANCE_SCALE", 7.5),
		ProviderStrength:   getEnvFloat("PROVIDER_STRENGTH", 0.6),
		PollInterval:       getEnvDuration("POLL_INTERVAL", 5*time.Second),
		PollBudget:         getEnvDuration("POLL_BUDGET", 5*time.Minute),

		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", "minio")),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StoragePublicURL: strings.TrimRight(os.Getenv("STORAGE_PUBLIC_URL"), "/"),
		MinioEndpoint:    getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:   getEnv("MINIO_ACCESS_KEY", "minio"),
		MinioSecretKey:   getEnv("MINIO_SECRET_KEY", "minio123"),
		MinioBucket:      getEnv("MINIO_BUCKET", "media"),
		MinioUseSSL:      strings.EqualFold(os.Getenv("MINIO_USE_SSL"), "true"),
		MinioRegion:      os.Getenv("MINIO_REGION"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisQueueKey: getEnv("REDIS_QUEUE_KEY", "mediagen:jobs:queue"),
		TriggerMode:   strings.ToLower(getEnv("TRIGGER_MODE", TriggerModeHTTP)),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		EmbeddedWorker:    strings.EqualFold(os.Getenv("EMBEDDED_WORKER"), "true"),

		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", time.Minute),
		SweepStaleAfter: getEnvDuration("SWEEP_STALE_AFTER", 2*time.Minute),

		FFMPEGPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		ScratchDir:       getEnv("SCRATCH_DIR", os.TempDir()),
		StoryShotSeconds: getEnvFloat("STORY_SHOT_SECONDS", 3),
		StoryFadeSeconds: getEnvFloat("STORY_FADE_SECONDS", 0.5),

		PresetsFile: os.Getenv("PRESETS_FILE"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      splitList(os.Getenv("CORS_ORIGINS")),
	}

	if cfg.ProviderStatusURL == "" {
		cfg.ProviderStatusURL = cfg.ProviderBaseURL + "/generations"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreMode {
	case StoreModePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreModeMemory, StoreModeNone:
	default:
		return fmt.Errorf("STORE_MODE %q is not supported", c.StoreMode)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.TriggerMode {
	case TriggerModeHTTP:
		if c.InternalKey == "" {
			return fmt.Errorf("INTERNAL_KEY is required for http trigger mode")
		}
	case TriggerModeRedis:
	default:
		return fmt.Errorf("TRIGGER_MODE %q is not supported", c.TriggerMode)
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 1
	}
	if c.PollInterval <= 0 || c.PollBudget <= 0 {
		return fmt.Errorf("POLL_INTERVAL and POLL_BUDGET must be positive")
	}
	return nil
}

// ConsumesQueue reports whether the API process should run the redis
// consumer itself. A memory store is only visible in-process, so it forces
// the embedded consumer.
func (c *Config) ConsumesQueue() bool {
	return c.TriggerMode == TriggerModeRedis && (c.EmbeddedWorker || c.StoreMode == StoreModeMemory)
}

// CallbackURL returns the webhook URL handed to the provider, or "" when no
// public base URL is configured.
func (c *Config) CallbackURL() string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return c.PublicBaseURL + "/v1/webhooks/provider"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
