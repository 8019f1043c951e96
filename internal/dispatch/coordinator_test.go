package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyBoundedPrefix(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}

	key := Key("POST", "/transcribe", long)
	if len(key) != len("POST /transcribe 200:")+keyPrefixLen {
		t.Errorf("Expected bounded key length, got %d", len(key))
	}

	// Bodies that differ inside the prefix produce distinct keys.
	other := make([]byte, 200)
	copy(other, long)
	other[10] = 'b'
	if Key("POST", "/transcribe", other) == key {
		t.Error("Expected distinct keys for bodies differing inside prefix")
	}

	// Bodies that differ only past the prefix collide by design.
	tail := make([]byte, 200)
	copy(tail, long)
	tail[150] = 'b'
	if Key("POST", "/transcribe", tail) != key {
		t.Error("Expected identical keys for bodies differing past the prefix")
	}
}

func TestDoDeduplicatesConcurrentCalls(t *testing.T) {
	c := NewCoordinator(Config{Timeout: 5 * time.Second})

	var calls atomic.Int64
	release := make(chan struct{})

	fn := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		<-release
		return "result", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]interface{}, callers)
	errs := make([]error, callers)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = c.Do(context.Background(), "POST", "/transcribe", []byte("same-body"), fn)
		}(i)
	}

	// Let all callers pile onto the pending entry before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 network call, got %d", got)
	}

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("Caller %d: unexpected error %v", i, errs[i])
		}
		if results[i] != "result" {
			t.Errorf("Caller %d: expected shared result, got %v", i, results[i])
		}
	}
}

func TestDoEntryRemovedAfterSettlement(t *testing.T) {
	c := NewCoordinator(Config{Timeout: 5 * time.Second})

	var calls atomic.Int64
	fn := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return nil, errors.New("boom")
	}

	if _, err := c.Do(context.Background(), "POST", "/transcribe", []byte("body"), fn); err == nil {
		t.Fatal("Expected first call to fail")
	}

	// A later identical call is not suppressed by the settled entry.
	if _, err := c.Do(context.Background(), "POST", "/transcribe", []byte("body"), fn); err == nil {
		t.Fatal("Expected second call to fail")
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("Expected 2 calls after settlement, got %d", got)
	}
}

func TestDoTimeout(t *testing.T) {
	c := NewCoordinator(Config{Timeout: 50 * time.Millisecond})

	fn := func(ctx context.Context) (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	}

	_, err := c.Do(context.Background(), "POST", "/transcribe", []byte("slow"), fn)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Errorf("Expected ErrRequestTimeout, got %v", err)
	}

	stats := c.GetStats()
	if stats.Timeouts != 1 {
		t.Errorf("Expected 1 recorded timeout, got %d", stats.Timeouts)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	c := NewCoordinator(Config{BaseDelay: time.Millisecond})

	var attempts int
	err := c.Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, 3)

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	c := NewCoordinator(Config{BaseDelay: time.Millisecond})

	var attempts int
	failure := errors.New("persistent")
	err := c.Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return failure
	}, 2)

	if err == nil {
		t.Fatal("Expected error after exhausted attempts")
	}
	if !errors.Is(err, failure) {
		t.Errorf("Expected final error to wrap the last failure, got %v", err)
	}
	// maxAttempts+1 total invocations.
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("Expected attempt count in error, got %q", err.Error())
	}
}

func TestRetryCancellation(t *testing.T) {
	c := NewCoordinator(Config{BaseDelay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- c.Retry(ctx, func(ctx context.Context) error {
			return errors.New("always fails")
		}, 3)
	}()

	// Cancel while the retry loop is sleeping out its first backoff.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not observe cancellation")
	}
}

func TestBackoffDelay(t *testing.T) {
	base := 1000 * time.Millisecond

	expected := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
	}

	for i, want := range expected {
		if got := BackoffDelay(base, i); got != want {
			t.Errorf("Attempt %d: expected delay %v, got %v", i, want, got)
		}
	}

	if got := BackoffDelay(base, -1); got != base {
		t.Errorf("Expected negative attempt to clamp to base, got %v", got)
	}
}

func TestUpdateConfigBeforeLoad(t *testing.T) {
	c := New()

	timeout := 5 * time.Second
	err := c.UpdateConfig(ConfigUpdate{Timeout: &timeout})
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestUpdateConfigMergesSetFields(t *testing.T) {
	c := NewCoordinator(Config{
		Timeout:    10 * time.Second,
		MaxRetries: 5,
		BaseDelay:  2 * time.Second,
	})

	timeout := 30 * time.Second
	if err := c.UpdateConfig(ConfigUpdate{Timeout: &timeout}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	cfg := c.Config()
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected updated timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("Expected max retries preserved at 5, got %d", cfg.MaxRetries)
	}
	if cfg.BaseDelay != 2*time.Second {
		t.Errorf("Expected base delay preserved at 2s, got %v", cfg.BaseDelay)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := NewCoordinator(Config{})

	cfg := c.Config()
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout %v, got %v", DefaultTimeout, cfg.Timeout)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("Expected explicit zero retries preserved, got %d", cfg.MaxRetries)
	}
	if cfg.BaseDelay != DefaultBaseDelay {
		t.Errorf("Expected default base delay %v, got %v", DefaultBaseDelay, cfg.BaseDelay)
	}
}
