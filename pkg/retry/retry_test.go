package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "searchtweets/pkg/errors"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func rateLimited() error {
	return &errs.Error{Type: errs.ErrorTypeRateLimit, Code: 429, Message: "Too Many Requests"}
}

func TestRateLimitBackoff(t *testing.T) {
	rb := NewRateLimitBackoff()

	// 4s and 16s are raised to the 30s floor; 36s onward grows quadratically.
	expected := []time.Duration{30, 30, 36, 64, 100, 144, 196, 256, 44}
	for i, want := range expected {
		got := rb.NextDelay(i + 1)
		assert.Equal(t, want*time.Second, got, "attempt %d", i+1)
	}
	assert.Equal(t, 900*time.Second, rb.Slept())

	// Budget spent: every further delay is the floor.
	assert.Equal(t, 30*time.Second, rb.NextDelay(10))

	rb.Reset()
	assert.Zero(t, rb.Slept())
	assert.Equal(t, 30*time.Second, rb.NextDelay(1))
}

func TestConstantBackoff(t *testing.T) {
	cb := &ConstantBackoff{Delay: 30 * time.Second}
	assert.Zero(t, cb.NextDelay(0))
	assert.Equal(t, 30*time.Second, cb.NextDelay(1))
	assert.Equal(t, 30*time.Second, cb.NextDelay(7))
}

func TestErrorTypeBackoff(t *testing.T) {
	etb := NewErrorTypeBackoff()

	assert.IsType(t, &RateLimitBackoff{}, etb.ForError(rateLimited()))
	server := etb.ForError(&errs.Error{Type: errs.ErrorTypeServerError, Code: 503})
	require.IsType(t, &ConstantBackoff{}, server)
	assert.Equal(t, 30*time.Second, server.(*ConstantBackoff).Delay)
	assert.Equal(t, etb.DefaultBackoff, etb.ForError(errors.New("other")))
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.True(t, DefaultRetryIf(rateLimited()))
	assert.True(t, DefaultRetryIf(&errs.Error{Type: errs.ErrorTypeServerError, Code: 500}))
	assert.False(t, DefaultRetryIf(errs.NewHTTPError(404, "", "not found")))
	assert.False(t, DefaultRetryIf(errs.NewTransportError("dial", errors.New("refused"))))
	assert.False(t, DefaultRetryIf(context.Canceled))
}

func TestRetryWithSuccess(t *testing.T) {
	rec := &sleepRecorder{}
	attempts := 0
	op := func() error {
		attempts++
		if attempts < 3 {
			return rateLimited()
		}
		return nil
	}

	cfg := DefaultConfig()
	cfg.Sleep = rec.sleep
	cfg.Logger = nil

	require.NoError(t, Do(op, cfg))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, rec.delays)
}

func TestRetryWithMaxAttemptsExceeded(t *testing.T) {
	rec := &sleepRecorder{}
	attempts := 0
	op := func() error {
		attempts++
		return &errs.Error{Type: errs.ErrorTypeServerError, Code: 503}
	}

	cfg := DefaultConfig()
	cfg.Sleep = rec.sleep
	cfg.Logger = nil

	err := Do(op, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxAttempts)
	assert.Equal(t, 503, errs.StatusCode(err))
	assert.Equal(t, 10, attempts)
	// No sleep after the final attempt.
	assert.Len(t, rec.delays, 9)
}

func TestRetryWithNonRetryableError(t *testing.T) {
	rec := &sleepRecorder{}
	attempts := 0
	notFound := errs.NewHTTPError(404, `{"title":"Not Found"}`, "not found")

	op := func() error {
		attempts++
		return notFound
	}

	cfg := DefaultConfig()
	cfg.Sleep = rec.sleep
	cfg.Logger = nil

	err := Do(op, cfg)
	assert.Same(t, notFound, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, rec.delays)
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	op := func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return rateLimited()
	}

	cfg := &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 10 * time.Millisecond},
		Context:     ctx,
	}

	err := Do(op, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestOnRetryObservesDelay(t *testing.T) {
	var seen []time.Duration
	attempts := 0

	cfg := &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     func(error) bool { return true },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			seen = append(seen, delay)
		},
		Context: context.Background(),
	}

	_ = Do(func() error {
		attempts++
		return errors.New("again")
	}, cfg)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, seen)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	op := func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", rateLimited()
		}
		return "success", nil
	}

	cfg := DefaultConfig()
	cfg.Sleep = (&sleepRecorder{}).sleep
	cfg.Logger = nil

	result, err := DoWithResult(op, cfg)
	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 2, attempts)
}

func TestWaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Wait(context.Background(), time.Millisecond))
}
