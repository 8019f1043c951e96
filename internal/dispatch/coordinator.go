package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrRequestTimeout reports that a coordinated call exceeded its
	// configured timeout and was cancelled.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrNotInitialized reports a configuration update before the first
	// configuration load.
	ErrNotInitialized = errors.New("coordinator configuration not loaded")
)

const (
	// DefaultTimeout bounds each coordinated call.
	DefaultTimeout = 15 * time.Second

	// DefaultBaseDelay is the backoff base: attempt i waits base * 2^i.
	DefaultBaseDelay = time.Second

	// DefaultMaxRetries is the number of retries after the initial attempt.
	DefaultMaxRetries = 3

	// keyPrefixLen bounds how much of the request body participates in the
	// dedup key. Identical gated chunks collide; distinct payloads diverge
	// within the first multipart block.
	keyPrefixLen = 64
)

// Config is the coordinator configuration snapshot.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// ConfigUpdate carries a partial configuration; nil fields keep their
// current values.
type ConfigUpdate struct {
	Timeout    *time.Duration
	MaxRetries *int
	BaseDelay  *time.Duration
}

// CallFunc performs a single outbound call under the coordinator's control.
type CallFunc func(ctx context.Context) (interface{}, error)

// Coordinator deduplicates, times out, and retries outbound calls. For any
// dedup key at most one call is in flight; concurrent callers with the same
// key share the original call's result. Entries settle out of the table with
// the call, success or failure.
type Coordinator struct {
	group singleflight.Group

	cfg    Config
	loaded bool

	// Optional observation hooks, set before first use.
	OnDedupHit func()
	OnRetry    func()

	// Statistics
	totalCalls   uint64
	dedupHits    uint64
	timeouts     uint64
	totalRetries uint64

	mu sync.RWMutex
}

// Stats represents coordinator statistics.
type Stats struct {
	TotalCalls   uint64 `json:"total_calls"`
	DedupHits    uint64 `json:"dedup_hits"`
	Timeouts     uint64 `json:"timeouts"`
	TotalRetries uint64 `json:"total_retries"`
}

// New creates an unconfigured coordinator. LoadConfig must run before
// UpdateConfig; Do and Retry fall back to defaults until then.
func New() *Coordinator {
	return &Coordinator{}
}

// NewCoordinator creates a coordinator with the given configuration loaded.
func NewCoordinator(cfg Config) *Coordinator {
	c := New()
	c.LoadConfig(cfg)
	return c
}

// LoadConfig installs a full configuration snapshot, filling zero fields
// with defaults.
func (c *Coordinator) LoadConfig(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = cfg
	c.loaded = true
}

// UpdateConfig merges the set fields of the update over the current
// snapshot. It fails with ErrNotInitialized before the first LoadConfig.
func (c *Coordinator) UpdateConfig(update ConfigUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return ErrNotInitialized
	}

	if update.Timeout != nil {
		c.cfg.Timeout = *update.Timeout
	}
	if update.MaxRetries != nil {
		c.cfg.MaxRetries = *update.MaxRetries
	}
	if update.BaseDelay != nil {
		c.cfg.BaseDelay = *update.BaseDelay
	}

	return nil
}

// Config returns the current configuration snapshot, falling back to
// defaults when none has been loaded.
func (c *Coordinator) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return Config{
			Timeout:    DefaultTimeout,
			MaxRetries: DefaultMaxRetries,
			BaseDelay:  DefaultBaseDelay,
		}
	}

	return c.cfg
}

// Key builds the dedup key from method, endpoint, body length, and a
// bounded prefix of the request body.
func Key(method, endpoint string, body []byte) string {
	prefix := body
	if len(prefix) > keyPrefixLen {
		prefix = prefix[:keyPrefixLen]
	}

	return method + " " + endpoint + " " + strconv.Itoa(len(body)) + ":" + string(prefix)
}

// Do executes fn under dedup and timeout control. Callers arriving while an
// identical call is pending receive the same settled result; the pending
// entry is removed when the call settles, regardless of outcome.
func (c *Coordinator) Do(ctx context.Context, method, endpoint string, body []byte, fn CallFunc) (interface{}, error) {
	cfg := c.Config()
	key := Key(method, endpoint, body)

	c.mu.Lock()
	c.totalCalls++
	c.mu.Unlock()

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		value, callErr := fn(callCtx)
		if callErr != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			c.mu.Lock()
			c.timeouts++
			c.mu.Unlock()
			return nil, fmt.Errorf("%w after %s: %v", ErrRequestTimeout, cfg.Timeout, callErr)
		}

		return value, callErr
	})

	if shared {
		c.mu.Lock()
		c.dedupHits++
		c.mu.Unlock()

		if c.OnDedupHit != nil {
			c.OnDedupHit()
		}
	}

	return result, err
}

// Retry invokes fn up to maxAttempts+1 times, waiting BaseDelay * 2^attempt
// after failed attempt number attempt (0-indexed). It returns the first
// success, or the last failure once attempts are exhausted. Negative
// maxAttempts falls back to the configured value.
func (c *Coordinator) Retry(ctx context.Context, fn func(ctx context.Context) error, maxAttempts int) error {
	cfg := c.Config()
	if maxAttempts < 0 {
		maxAttempts = cfg.MaxRetries
	}

	var lastErr error

	for attempt := 0; attempt <= maxAttempts; attempt++ {
		if attempt > 0 {
			c.mu.Lock()
			c.totalRetries++
			c.mu.Unlock()

			if c.OnRetry != nil {
				c.OnRetry()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(BackoffDelay(cfg.BaseDelay, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", maxAttempts+1, lastErr)
}

// BackoffDelay returns the wait after failed attempt number attempt
// (0-indexed): base * 2^attempt.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	return base << uint(attempt)
}

// GetStats returns current coordinator statistics.
func (c *Coordinator) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		TotalCalls:   c.totalCalls,
		DedupHits:    c.dedupHits,
		Timeouts:     c.timeouts,
		TotalRetries: c.totalRetries,
	}
}
