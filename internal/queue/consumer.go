package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mediagen/internal/infra"
)

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

type listPopper interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisConsumer pops job ids with BRPOP and hands them to a Processor, at
// most Concurrency at a time.
type RedisConsumer struct {
	rdb         listPopper
	key         string
	proc        Processor
	concurrency int
	block       time.Duration
	backoff     time.Duration
	logger      *infra.Logger
}

func NewRedisConsumer(rdb listPopper, key string, proc Processor, concurrency int, logger *infra.Logger) *RedisConsumer {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &RedisConsumer{
		rdb:         rdb,
		key:         key,
		proc:        proc,
		concurrency: concurrency,
		block:       5 * time.Second,
		backoff:     2 * time.Second,
		logger:      logger,
	}
}

// Run consumes until ctx is cancelled, then waits for in-flight jobs.
func (c *RedisConsumer) Run(ctx context.Context) error {
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	c.logger.Info().Str("queue", c.key).Int("concurrency", c.concurrency).Msg("queue: consumer started")
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := c.rdb.BRPop(ctx, c.block, c.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("queue: brpop failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		jobID := res[1]

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			// In-flight jobs outlive shutdown.
			if err := c.proc.Process(context.WithoutCancel(ctx), jobID); err != nil {
				c.logger.Warn().Err(err).Str("job_id", jobID).Msg("queue: job ended with error")
			}
		}()
	}
}
