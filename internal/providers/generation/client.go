// Package generation is the HTTP client for the upstream generative provider.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

// ErrStopped is returned by Await when BeforeTick ends the loop.
var ErrStopped = errors.New("generation: polling stopped")

// State is the normalized provider job state.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Options configures the provider client.
type Options struct {
	APIKey         string
	BaseURL        string
	StatusURL      string
	Model          string
	ImageModel     string
	Steps          int
	GuidanceScale  float64
	Strength       float64
	CallbackURL    string
	CallbackSecret string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the provider's generations API.
type Client struct {
	apiKey         string
	baseURL        string
	statusURL      string
	model          string
	imageModel     string
	steps          int
	guidance       float64
	strength       float64
	callbackURL    string
	callbackSecret string
	httpClient     *http.Client
	logger         *infra.Logger
}

// Request captures the inputs of one generation.
type Request struct {
	Model          string
	Prompt         string
	NegativePrompt string
	SourceRef      string
	Strength       *float64
	// Image selects the image model and disables the callback.
	Image bool
}

// Submission is the provider's answer to a generation request. Either
// ResultURL or ProviderJobID is set.
type Submission struct {
	ProviderJobID string
	ResultURL     string
}

// Status is one provider status observation.
type Status struct {
	State     State
	ResultURL string
	Error     string
	Progress  int
}

// AwaitOptions bounds a poll loop.
type AwaitOptions struct {
	Interval time.Duration
	Budget   time.Duration
	// BeforeTick runs before every status request. Returning stop=true ends
	// the loop with ErrStopped.
	BeforeTick func(ctx context.Context) (stop bool, err error)
	OnProgress func(ctx context.Context, progress int)
}

type generationPayload struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Source         string   `json:"source,omitempty"`
	Strength       *float64 `json:"strength,omitempty"`
	Steps          int      `json:"steps,omitempty"`
	GuidanceScale  float64  `json:"guidance_scale,omitempty"`
	CallbackURL    string   `json:"callback_url,omitempty"`
	CallbackSecret string   `json:"callback_secret,omitempty"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("generation: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	statusURL := strings.TrimRight(strings.TrimSpace(opts.StatusURL), "/")
	if statusURL == "" {
		statusURL = baseURL + "/generations"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "img2img-xl"
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = model
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:         strings.TrimSpace(opts.APIKey),
		baseURL:        baseURL,
		statusURL:      statusURL,
		model:          model,
		imageModel:     imageModel,
		steps:          opts.Steps,
		guidance:       opts.GuidanceScale,
		strength:       opts.Strength,
		callbackURL:    strings.TrimSpace(opts.CallbackURL),
		callbackSecret: opts.CallbackSecret,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.model
}

// Submit starts a generation.
func (c *Client) Submit(ctx context.Context, req Request) (*Submission, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("generation: prompt is required")
	}
	payload := generationPayload{
		Model:          strings.TrimSpace(req.Model),
		Prompt:         prompt,
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Source:         strings.TrimSpace(req.SourceRef),
		Strength:       req.Strength,
		Steps:          c.steps,
		GuidanceScale:  c.guidance,
	}
	if payload.Model == "" {
		payload.Model = c.model
		if req.Image {
			payload.Model = c.imageModel
		}
	}
	if payload.Strength == nil && payload.Source != "" && c.strength > 0 {
		s := c.strength
		payload.Strength = &s
	}
	if !req.Image && c.callbackURL != "" {
		payload.CallbackURL = c.callbackURL
		payload.CallbackSecret = c.callbackSecret
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("generation: encode request: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/generations", body)
	if err != nil {
		return nil, err
	}
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	sub := &Submission{
		ProviderJobID: firstString(doc, "id", "job_id", "jobId", "request_id", "requestId"),
		ResultURL:     resultURL(doc),
	}
	if sub.ProviderJobID == "" && sub.ResultURL == "" {
		return nil, fmt.Errorf("%w: response carried neither job id nor result url", domain.ErrProviderFailure)
	}
	c.logger.Debug().
		Str("model", payload.Model).
		Str("provider_job_id", sub.ProviderJobID).
		Bool("sync_result", sub.ResultURL != "").
		Msg("generation: submitted")
	return sub, nil
}

// Status queries the provider for providerJobID.
func (c *Client) Status(ctx context.Context, providerJobID string) (*Status, error) {
	id := strings.TrimSpace(providerJobID)
	if id == "" {
		return nil, errors.New("generation: provider job id is required")
	}
	raw, err := c.do(ctx, http.MethodGet, c.statusURL+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	st := &Status{
		State:     MapState(firstString(doc, "status", "state")),
		ResultURL: resultURL(doc),
		Error:     errorText(doc),
		Progress:  progressValue(doc),
	}
	if st.State == StateRunning && st.ResultURL != "" && firstString(doc, "status", "state") == "" {
		st.State = StateSucceeded
	}
	return st, nil
}

// Await polls Status every Interval until the provider reports a terminal
// state, BeforeTick stops the loop, or Budget elapses.
func (c *Client) Await(ctx context.Context, providerJobID string, opts AwaitOptions) (*Status, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	deadline := time.Now().Add(budget)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		if opts.BeforeTick != nil {
			stop, err := opts.BeforeTick(ctx)
			if err != nil {
				return nil, err
			}
			if stop {
				return nil, ErrStopped
			}
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w after %s", domain.ErrProviderTimeout, budget)
		}

		st, err := c.Status(ctx, providerJobID)
		if err != nil {
			return nil, err
		}
		c.logger.Debug().
			Str("provider_job_id", providerJobID).
			Int("attempt", attempt).
			Str("state", string(st.State)).
			Int("progress", st.Progress).
			Msg("generation: poll")
		switch st.State {
		case StateSucceeded:
			if st.ResultURL == "" {
				return nil, fmt.Errorf("%w: succeeded without a result url", domain.ErrProviderFailure)
			}
			return st, nil
		case StateFailed:
			reason := st.Error
			if reason == "" {
				reason = "provider reported failure"
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrProviderFailure, reason)
		}
		if st.Progress > 0 && opts.OnProgress != nil {
			opts.OnProgress(ctx, st.Progress)
		}

		wait := interval
		if remaining := time.Until(deadline); remaining < wait {
			wait = max(remaining, 0)
		}
		timer.Reset(wait)
	}
}

// Generate submits req and waits for its result URL.
func (c *Client) Generate(ctx context.Context, req Request, opts AwaitOptions) (string, error) {
	sub, err := c.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	if sub.ResultURL != "" {
		return sub.ResultURL, nil
	}
	st, err := c.Await(ctx, sub.ProviderJobID, opts)
	if err != nil {
		return "", err
	}
	return st.ResultURL, nil
}

// Download writes the body of rawURL to dest and returns the content type.
func (c *Client) Download(ctx context.Context, rawURL, dest string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" {
		return "", fmt.Errorf("generation: invalid result url: %s", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", fmt.Errorf("generation: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation: download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("generation: download status %d", resp.StatusCode)
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("generation: create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("generation: write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("generation: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("generation: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if doc, err := decodeObject(raw); err == nil {
			if msg := errorText(doc); msg != "" {
				return nil, fmt.Errorf("%w: status %d: %s", domain.ErrProviderFailure, resp.StatusCode, msg)
			}
		}
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrProviderFailure, resp.StatusCode, snippet(raw))
	}
	return raw, nil
}

// MapState folds provider vocabulary into State.
func MapState(raw string) State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "succeeded", "success", "successful", "completed", "complete", "done", "finished":
		return StateSucceeded
	case "failed", "failure", "error", "errored", "canceled", "cancelled", "rejected":
		return StateFailed
	default:
		return StateRunning
	}
}

func decodeObject(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("generation: decode response: %w", err)
	}
	// Some providers wrap the payload in {"data": {...}}.
	if inner, ok := doc["data"].(map[string]any); ok {
		for k, v := range inner {
			if _, exists := doc[k]; !exists {
				doc[k] = v
			}
		}
	}
	return doc, nil
}

func firstString(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func resultURL(doc map[string]any) string {
	if s := firstString(doc, "result_url", "resultUrl", "output_url", "outputUrl", "url"); s != "" {
		return s
	}
	switch v := doc["output"].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func errorText(doc map[string]any) string {
	switch v := doc["error"].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return firstString(v, "message", "detail", "code")
	}
	return firstString(doc, "message", "detail")
}

func progressValue(doc map[string]any) int {
	switch v := doc["progress"].(type) {
	case float64:
		if v > 0 && v < 1 {
			return int(v * 100)
		}
		return domain.ClampProgress(int(v))
	}
	return 0
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
