package client

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"
)

// Retry defaults for connection establishment.
const (
	// DefaultRetryInitial is the delay before the first retry.
	DefaultRetryInitial = 250 * time.Millisecond

	// DefaultRetryMax caps the delay between retries.
	DefaultRetryMax = 5 * time.Second

	retryMultiplier = 2.0
	retryJitter     = 0.25
)

// RetryConfig controls how often Dial retries a refused or unreachable
// server. Only connection establishment is retried; a failed key exchange
// is returned at once.
type RetryConfig struct {
	// Attempts is the total number of connection attempts (0 or 1 means no
	// retry).
	Attempts int

	// Initial is the delay before the first retry.
	Initial time.Duration

	// Max caps the delay between retries.
	Max time.Duration
}

// backoff calculates exponential delays with jitter.
type backoff struct {
	mu      sync.Mutex
	current time.Duration
	max     time.Duration
	jitter  float64
	rng     *rand.Rand
}

func newBackoff(config RetryConfig) *backoff {
	if config.Initial <= 0 {
		config.Initial = DefaultRetryInitial
	}
	if config.Max <= 0 {
		config.Max = DefaultRetryMax
	}
	return &backoff{
		current: config.Initial,
		max:     config.Max,
		jitter:  retryJitter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
func (b *backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	if b.jitter > 0 {
		delay += time.Duration(float64(delay) * b.jitter * b.rng.Float64())
	}

	b.current = min(time.Duration(float64(b.current)*retryMultiplier), b.max)
	return delay
}

// connect dials addr, retrying per config.Retry.
func connect(ctx context.Context, addr string, config Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: config.DialTimeout}
	attempts := max(config.Retry.Attempts, 1)
	b := newBackoff(config.Retry)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := b.Next()
		if config.Logger != nil {
			config.Logger.Debug("connect failed, retrying", "addr", addr, "attempt", attempt, "delay", delay, "error", err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, ctx.Err())
		}
	}
	return nil, fmt.Errorf("failed to connect to %s after %d attempt(s): %w", addr, attempts, lastErr)
}
