package retry

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records delays without actually sleeping.
type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.delays = append(f.delays, d)
	return nil
}

func noJitter() Config {
	return Config{MaxAttempts: 4, InitDelay: time.Second, MaxDelay: 30 * time.Second, Strategy: Exponential}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	err := doWithSleeper(context.Background(), DefaultConfig(), func() error { return nil }, s)
	require.NoError(t, err)
	assert.Empty(t, s.delays)
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	calls := 0
	err := doWithSleeper(context.Background(), noJitter(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, s)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.delays)
}

func TestDo_AllFailReturnsLast(t *testing.T) {
	t.Parallel()
	s := &fakeSleeper{}
	calls := 0
	err := doWithSleeper(context.Background(), noJitter(), func() error {
		calls++
		return errors.New("boom")
	}, s)
	require.EqualError(t, err, "boom")
	assert.Equal(t, 4, calls)
	assert.Len(t, s.delays, 3, "no sleep after final attempt")
}

func TestDo_StopError(t *testing.T) {
	t.Parallel()
	permanent := errors.New("not found")
	calls := 0
	err := doWithSleeper(context.Background(), noJitter(), func() error {
		calls++
		return Stop(permanent)
	}, &fakeSleeper{})
	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RespectsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := doWithSleeper(ctx, noJitter(), func() error { called = true; return nil }, &fakeSleeper{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDo_OnRetryCallback(t *testing.T) {
	t.Parallel()
	cfg := noJitter()
	cfg.MaxAttempts = 3
	var seen []int
	cfg.OnRetry = func(attempt int, err error, d time.Duration) { seen = append(seen, attempt) }
	_ = doWithSleeper(context.Background(), cfg, func() error { return errors.New("x") }, &fakeSleeper{})
	assert.Equal(t, []int{0, 1}, seen)
}

func TestDo_ZeroAttemptsIsNoop(t *testing.T) {
	t.Parallel()
	called := false
	err := Do(context.Background(), Config{}, func() error { called = true; return errors.New("x") })
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestDoValue(t *testing.T) {
	t.Parallel()
	cfg := noJitter()
	cfg.InitDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	calls := 0
	v, err := DoValue(context.Background(), cfg, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("again")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()
	assert.NoError(t, CheckStatus("u", http.StatusOK))

	err := CheckStatus("u", http.StatusServiceUnavailable)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	var stop *StopError
	assert.False(t, errors.As(err, &stop), "5xx must be retryable")

	err = CheckStatus("u", http.StatusTooManyRequests)
	assert.False(t, errors.As(err, &stop), "429 must be retryable")

	err = CheckStatus("u", http.StatusNotFound)
	assert.True(t, errors.As(err, &stop), "404 is permanent")
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Code)
}

func TestCalcDelay_AllStrategies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		strategy Strategy
		attempt  int
		want     time.Duration
	}{
		{Exponential, 0, time.Second},
		{Exponential, 3, 8 * time.Second},
		{Linear, 2, 3 * time.Second},
		{Constant, 5, time.Second},
	}
	for _, tt := range tests {
		cfg := Config{InitDelay: time.Second, MaxDelay: time.Minute, Strategy: tt.strategy}
		assert.Equal(t, tt.want, CalcDelay(cfg, tt.attempt))
	}
}

// Exponential backoff must stay within bounds even where 2^attempt overflows int64.
func TestCalcDelay_NeverExceedsMax(t *testing.T) {
	t.Parallel()
	for _, strategy := range []Strategy{Exponential, Linear, Constant} {
		cfg := Config{InitDelay: time.Second, MaxDelay: 30 * time.Second, Strategy: strategy, Jitter: true}
		for _, attempt := range []int{0, 1, 62, 63, 64, 1000, math.MaxInt32} {
			d := CalcDelay(cfg, attempt)
			require.GreaterOrEqual(t, d, time.Duration(0), "strategy %d attempt %d", strategy, attempt)
			require.LessOrEqual(t, d, cfg.MaxDelay, "strategy %d attempt %d", strategy, attempt)
		}
	}
}
