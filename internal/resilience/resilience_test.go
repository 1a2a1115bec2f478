package resilience_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/clave/internal/resilience"
)

func TestDo_Success(t *testing.T) {
	c := resilience.NewCaller(resilience.Config{})

	out, err := c.Do(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), out)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	c := resilience.NewCaller(resilience.Config{MaxRetries: 3})
	boom := errors.New("http 404")

	var calls int32
	_, err := c.Do(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, backoff.Permanent(boom)
	})
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	c := resilience.NewCaller(resilience.Config{MaxRetries: 2})

	var calls int32
	out, err := c.Do(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("http 503")
		}
		return []byte("eventually"), nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("eventually"), out)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_BreakerOpensAfterThreshold(t *testing.T) {
	var opened int32
	c := resilience.NewCaller(resilience.Config{
		MaxRetries:       1,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
		OnStateChange: func(key, from, to string) {
			if to == "open" {
				atomic.AddInt32(&opened, 1)
			}
		},
	})
	boom := backoff.Permanent(errors.New("http 400"))

	var calls int32
	fail := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	}

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), "google", fail)
		require.Error(t, err)
		require.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&opened))

	// Abierto: la op no se ejecuta.
	before := atomic.LoadInt32(&calls)
	_, err := c.Do(context.Background(), "google", fail)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	require.Equal(t, before, atomic.LoadInt32(&calls))
}

func TestDo_BreakersAreIndependentPerKey(t *testing.T) {
	c := resilience.NewCaller(resilience.Config{
		MaxRetries:       1,
		BreakerThreshold: 1,
		BreakerCooldown:  time.Minute,
	})

	_, err := c.Do(context.Background(), "google", func(ctx context.Context) ([]byte, error) {
		return nil, backoff.Permanent(errors.New("down"))
	})
	require.Error(t, err)

	_, err = c.Do(context.Background(), "google", func(ctx context.Context) ([]byte, error) {
		return []byte("x"), nil
	})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)

	// Otro provider no se ve afectado.
	out, err := c.Do(context.Background(), "kakao", func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), out)
}
