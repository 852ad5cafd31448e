// Package rest implements hostadapter.HostAdapter against a Home
// Assistant-style REST API. Retry/backoff is adapted from
// pkg/adsb's RetryWithBackoff; outbound request pacing uses
// golang.org/x/time/rate, the same limiter family the rest of the pack
// reaches for when throttling calls to a remote API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"reflect"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tobiasrehn/shadeflow/internal/hostadapter"
)

// RetryConfig configures exponential backoff for outbound host calls.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig mirrors the pack's conventional backoff defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// retryWithBackoff executes fn, retrying on error with exponential backoff.
// Context cancellation aborts immediately.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("rest: retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		next := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt)))
		if next > cfg.MaxDelay {
			next = cfg.MaxDelay
		}
		delay = next
	}

	return fmt.Errorf("rest: max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// Config configures the Adapter.
type Config struct {
	BaseURL     string
	Token       string
	AppDir      string
	RetryConfig RetryConfig

	// RequestsPerSecond bounds outbound call rate; 0 uses a conservative
	// default of 5 req/s with a burst of 5.
	RequestsPerSecond float64
}

// Adapter is a hostadapter.HostAdapter backed by a Home Assistant-style
// REST API, reached over net/http.
type Adapter struct {
	baseURL string
	token   string
	appDir  string
	client  *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
	logger  *slog.Logger

	pollMu    sync.Mutex
	lastState map[string]hostadapter.StateValue

	stateMu       sync.Mutex
	stateHandlers map[string][]hostadapter.StateHandler
	eventHandlers map[string][]hostadapter.EventHandler
}

// New constructs an Adapter. It performs no network I/O.
func New(cfg Config, logger *slog.Logger) *Adapter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	retryCfg := cfg.RetryConfig
	if retryCfg.MaxRetries == 0 && retryCfg.InitialDelay == 0 {
		retryCfg = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		baseURL:       cfg.BaseURL,
		token:         cfg.Token,
		appDir:        cfg.AppDir,
		client:        &http.Client{Timeout: 10 * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(rps), int(rps)),
		retry:         retryCfg,
		logger:        logger,
		lastState:     make(map[string]hostadapter.StateValue),
		stateHandlers: make(map[string][]hostadapter.StateHandler),
		eventHandlers: make(map[string][]hostadapter.EventHandler),
	}
}

func (a *Adapter) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rest: rate limiter: %w", err)
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("rest: marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, payload)
	if err != nil {
		return nil, 0, fmt.Errorf("rest: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("rest: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("rest: read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

type stateEnvelope struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// GetState fetches /api/states/{entity}.
func (a *Adapter) GetState(ctx context.Context, entity string) (hostadapter.StateValue, error) {
	var v hostadapter.StateValue

	err := retryWithBackoff(ctx, a.retry, func() error {
		data, status, err := a.do(ctx, http.MethodGet, "/api/states/"+entity, nil)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			v = hostadapter.StateValue{Valid: false}
			return nil
		}
		if status != http.StatusOK {
			return fmt.Errorf("rest: GetState %s: unexpected status %d", entity, status)
		}

		var env stateEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("rest: decode state: %w", err)
		}
		v = hostadapter.StateValue{State: env.State, Attributes: env.Attributes, Valid: true}
		return nil
	})

	return v, err
}

// SetState writes a value directly to an entity.
func (a *Adapter) SetState(ctx context.Context, entity, value string) error {
	return retryWithBackoff(ctx, a.retry, func() error {
		_, status, err := a.do(ctx, http.MethodPost, "/api/states/"+entity, map[string]any{"state": value})
		if err != nil {
			return err
		}
		if status != http.StatusOK && status != http.StatusCreated {
			return fmt.Errorf("rest: SetState %s: unexpected status %d", entity, status)
		}
		return nil
	})
}

// CallService invokes a domain/service call against an entity.
func (a *Adapter) CallService(ctx context.Context, domain, service, entityID string, args map[string]any) (hostadapter.ServiceResult, error) {
	body := map[string]any{"entity_id": entityID}
	for k, v := range args {
		body[k] = v
	}

	var result hostadapter.ServiceResult
	err := retryWithBackoff(ctx, a.retry, func() error {
		_, status, err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/services/%s/%s", domain, service), body)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			result = hostadapter.ServiceResult{Success: false, Err: fmt.Errorf("rest: status %d", status)}
			return fmt.Errorf("rest: call_service %s/%s: unexpected status %d", domain, service, status)
		}
		result = hostadapter.ServiceResult{Success: true}
		return nil
	})
	if err != nil && result.Err == nil {
		result.Err = err
	}
	return result, nil
}

// ListenState registers a handler invoked by Poll whenever entity's state
// changes from its last observed value. The REST API has no push
// subscription; Poll must be driven periodically (see cmd/shaded's
// scheduler) to detect changes.
func (a *Adapter) ListenState(entity string, handler hostadapter.StateHandler) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.stateHandlers[entity] = append(a.stateHandlers[entity], handler)
}

// ListenEvent registers an event handler. REST polling cannot observe the
// host event bus; handlers registered here are never invoked by this
// adapter and exist only to satisfy the HostAdapter contract for hosts
// that have no event bus to poll.
func (a *Adapter) ListenEvent(eventName string, handler hostadapter.EventHandler) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.eventHandlers[eventName] = append(a.eventHandlers[eventName], handler)
}

// Poll fetches every entity with a registered ListenState handler and
// fires handlers for any whose state or attributes changed since the
// previous Poll.
func (a *Adapter) Poll(ctx context.Context) {
	a.stateMu.Lock()
	entities := make([]string, 0, len(a.stateHandlers))
	for e := range a.stateHandlers {
		entities = append(entities, e)
	}
	a.stateMu.Unlock()

	for _, entity := range entities {
		v, err := a.GetState(ctx, entity)
		if err != nil {
			a.logger.Warn("rest: poll failed", "entity", entity, "error", err)
			continue
		}

		a.pollMu.Lock()
		old, seen := a.lastState[entity]
		a.lastState[entity] = v
		a.pollMu.Unlock()

		if seen && old.State == v.State && old.Valid == v.Valid && reflect.DeepEqual(old.Attributes, v.Attributes) {
			continue
		}

		a.stateMu.Lock()
		handlers := append([]hostadapter.StateHandler(nil), a.stateHandlers[entity]...)
		a.stateMu.Unlock()

		for _, h := range handlers {
			h(ctx, entity, old, v)
		}
	}
}

// RunEvery registers handler to run every interval: it waits until start,
// then calls handler once per interval, the first call coming one interval
// after start. Alignment to wall-clock boundaries depends on the start
// value passed in.
func (a *Adapter) RunEvery(handler hostadapter.TickHandler, start time.Time, interval time.Duration) {
	go func() {
		wait := time.Until(start)
		if wait > 0 {
			time.Sleep(wait)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for t := range ticker.C {
			handler(context.Background(), t)
		}
	}()
}

// Now returns the wall-clock time.
func (a *Adapter) Now() time.Time {
	return time.Now()
}

// AppDir returns the configured writable application directory.
func (a *Adapter) AppDir() string {
	return a.appDir
}

var _ hostadapter.HostAdapter = (*Adapter)(nil)
