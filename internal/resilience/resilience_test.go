package resilience

import (
	"context"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()
	boom := eris.New("boom")

	for i := 0; i < 3; i++ {
		assert.True(t, b.Available())
		_, err := Call(ctx, b, func(context.Context) (int, error) { return 0, boom })
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Available())

	_, err := Call(ctx, b, func(context.Context) (int, error) { return 42, nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	_, err := Call(ctx, b, func(context.Context) (int, error) { return 0, eris.New("boom") })
	require.Error(t, err)
	require.Equal(t, StateOpen, b.State())

	// Jump past the reset timeout: one probe is allowed.
	b.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, StateHalfOpen, b.State())

	val, err := Call(ctx, b, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	_, _ = Call(ctx, b, func(context.Context) (int, error) { return 0, eris.New("boom") })
	b.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := Call(ctx, b, func(context.Context) (int, error) { return 0, eris.New("still down") })
	require.Error(t, err)

	// Reopen starts a fresh reset window from the probe failure.
	assert.False(t, b.Available())
}

func TestBreaker_SuccessResets(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	_, _ = Call(ctx, b, func(context.Context) (int, error) { return 0, eris.New("boom") })
	_, _ = Call(ctx, b, func(context.Context) (int, error) { return 0, eris.New("boom") })
	_, err := Call(ctx, b, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	// Two more failures don't reach the threshold after the reset.
	_, _ = Call(ctx, b, func(context.Context) (int, error) { return 0, eris.New("boom") })
	_, _ = Call(ctx, b, func(context.Context) (int, error) { return 0, eris.New("boom") })
	assert.True(t, b.Available())
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	calls := 0
	val, err := Retry(context.Background(), cfg, "test", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(eris.New("try again"), http.StatusServiceUnavailable)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond}

	calls := 0
	_, err := Retry(context.Background(), cfg, "test", func(context.Context) (string, error) {
		calls++
		return "", eris.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelStops(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Retry(ctx, cfg, "test", func(context.Context) (string, error) {
		calls++
		cancel()
		return "", NewTransientError(eris.New("slow"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("validation failed")))
	assert.True(t, IsTransient(NewTransientError(eris.New("rate limited"), 429)))
	assert.True(t, IsTransient(syscall.ECONNREFUSED))
	assert.True(t, IsTransient(io.ErrUnexpectedEOF))
	assert.True(t, IsTransient(&net.DNSError{Err: "lookup timed out", IsTimeout: true}))
	assert.False(t, IsTransient(&net.DNSError{Err: "no such host", IsNotFound: true}))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	assert.True(t, IsTransientHTTPStatus(429))
	assert.True(t, IsTransientHTTPStatus(503))
	assert.False(t, IsTransientHTTPStatus(400))
	assert.False(t, IsTransientHTTPStatus(200))
}
