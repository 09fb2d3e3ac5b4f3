package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsToMax(t *testing.T) {
	b := newBackoff(RetryConfig{Initial: 100 * time.Millisecond, Max: 500 * time.Millisecond})
	b.jitter = 0

	var got []time.Duration
	for range 5 {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, got)
}

func TestBackoffJitterBounds(t *testing.T) {
	b := newBackoff(RetryConfig{Initial: time.Second, Max: time.Second})
	for range 50 {
		d := b.Next()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, time.Second+time.Second/4)
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := newBackoff(RetryConfig{})
	assert.Equal(t, DefaultRetryInitial, b.current)
	assert.Equal(t, DefaultRetryMax, b.max)
}

func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestConnectGivesUpAfterAttempts(t *testing.T) {
	addr := closedAddr(t)

	start := time.Now()
	_, err := connect(context.Background(), addr, Config{
		DialTimeout: time.Second,
		Retry:       RetryConfig{Attempts: 3, Initial: 10 * time.Millisecond},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestConnectRetriesUntilListening(t *testing.T) {
	addr := closedAddr(t)

	accepted := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer l.Close()
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
		close(accepted)
	}()

	conn, err := connect(context.Background(), addr, Config{
		DialTimeout: time.Second,
		Retry:       RetryConfig{Attempts: 20, Initial: 20 * time.Millisecond, Max: 50 * time.Millisecond},
	})
	require.NoError(t, err)
	conn.Close()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted")
	}
}

func TestConnectHonorsContext(t *testing.T) {
	addr := closedAddr(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := connect(ctx, addr, Config{
		DialTimeout: time.Second,
		Retry:       RetryConfig{Attempts: 100, Initial: time.Second},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
