// Package queue delivers queued jobs to workers: an HTTP fire-and-forget
// trigger, a Redis list, and a sweeper that re-triggers stranded jobs.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mediagen/internal/infra"
)

// InternalKeyHeader authenticates worker invocations.
const InternalKeyHeader = "X-Internal-Key"

var errNoJobID = errors.New("queue: job id is required")

// HTTPTrigger posts {"jobId"} to the worker endpoint without waiting for the
// response.
type HTTPTrigger struct {
	endpoint string
	key      string
	client   *http.Client
	logger   *infra.Logger
	wg       sync.WaitGroup
}

func NewHTTPTrigger(endpoint, internalKey string, client *http.Client, logger *infra.Logger) *HTTPTrigger {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &HTTPTrigger{endpoint: endpoint, key: internalKey, client: client, logger: logger}
}

// Trigger starts the POST in the background and returns immediately.
func (t *HTTPTrigger) Trigger(ctx context.Context, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return errNoJobID
	}
	body, err := json.Marshal(map[string]string{"jobId": jobID})
	if err != nil {
		return err
	}
	detached := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.post(detached, body); err != nil {
			t.logger.Warn().Err(err).Str("job_id", jobID).Msg("queue: http trigger failed")
			return
		}
		t.logger.Debug().Str("job_id", jobID).Msg("queue: worker triggered")
	}()
	return nil
}

// Wait blocks until in-flight triggers finish.
func (t *HTTPTrigger) Wait() {
	t.wg.Wait()
}

func (t *HTTPTrigger) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.client.Timeout+time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(InternalKeyHeader, t.key)
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("queue: worker responded %d", resp.StatusCode)
	}
	return nil
}

type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisTrigger pushes job ids onto a Redis list consumed by RedisConsumer.
type RedisTrigger struct {
	rdb listPusher
	key string
}

func NewRedisTrigger(rdb listPusher, key string) *RedisTrigger {
	return &RedisTrigger{rdb: rdb, key: key}
}

func (t *RedisTrigger) Trigger(ctx context.Context, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return errNoJobID
	}
	if err := t.rdb.LPush(ctx, t.key, jobID).Err(); err != nil {
		return fmt.Errorf("queue: lpush %s: %w", t.key, err)
	}
	return nil
}
