package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func testConfig() Config {
	return Config{
		Name:        "test",
		MaxFailures: 3,
		Timeout:     50 * time.Millisecond,
		HalfOpenMax: 2,
	}
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Equal(t, StateClosed, b.State())
		err := b.Execute(ctx, func() error { return errBackend })
		assert.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, StateOpen, b.State())

	// Calls are shed while open.
	err := b.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(testConfig())
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, func() error { return errBackend }))
	require.Error(t, b.Execute(ctx, func() error { return errBackend }))
	require.NoError(t, b.Execute(ctx, func() error { return nil }))

	// The streak restarted; two more failures stay closed.
	require.Error(t, b.Execute(ctx, func() error { return errBackend }))
	require.Error(t, b.Execute(ctx, func() error { return errBackend }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, func() error { return errBackend })
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)

	// Probes succeed; the breaker closes after HalfOpenMax successes.
	require.NoError(t, b.Execute(ctx, func() error { return nil }))
	require.NoError(t, b.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, func() error { return errBackend })
	}
	time.Sleep(60 * time.Millisecond)

	err := b.Execute(ctx, func() error { return errBackend })
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, func() error { return errBackend })
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Execute(ctx, func() error { return nil }))
}

func TestGroup(t *testing.T) {
	g := NewGroup(testConfig())
	ctx := context.Background()

	t.Run("breakers are independent", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			g.Execute(ctx, "redis", func() error { return errBackend })
		}
		assert.ErrorIs(t, g.Execute(ctx, "redis", func() error { return nil }), ErrCircuitOpen)
		assert.NoError(t, g.Execute(ctx, "postgres", func() error { return nil }))
	})

	t.Run("get returns the same breaker", func(t *testing.T) {
		assert.Same(t, g.Get("redis"), g.Get("redis"))
	})

	t.Run("states reports every breaker", func(t *testing.T) {
		states := g.States()
		assert.Equal(t, StateOpen, states["redis"])
		assert.Equal(t, StateClosed, states["postgres"])
	})
}
