package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/retina-api/internal/config"
	"github.com/jwalitptl/retina-api/pkg/metrics"
)

// flaky fails every call while down is set.
type flaky struct {
	*Memory
	down  bool
	calls int
}

var errDown = errors.New("backend down")

func (f *flaky) Get(ctx context.Context, key string) (string, bool, error) {
	f.calls++
	if f.down {
		return "", false, errDown
	}
	return f.Memory.Get(ctx, key)
}

func (f *flaky) Set(ctx context.Context, key, value string) error {
	f.calls++
	if f.down {
		return errDown
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *flaky) Backend() string { return "flaky" }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &flaky{Memory: NewMemory(), down: true}
	b := NewBreaker(next, config.BreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, zerolog.Nop())
	ctx := context.Background()

	assert.ErrorIs(t, b.Set(ctx, "user", "x"), errDown)
	assert.ErrorIs(t, b.Set(ctx, "user", "x"), errDown)
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Set(ctx, "user", "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls)
}

func TestBreakerPassesThrough(t *testing.T) {
	next := &flaky{Memory: NewMemory()}
	b := NewBreaker(next, config.BreakerConfig{}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "user", "x"))
	v, ok, err := b.Get(ctx, "user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.Equal(t, "flaky", b.Backend())
}

func TestInstrumented(t *testing.T) {
	m := metrics.New("test")
	kv := NewInstrumented(NewMemory(), m)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "user", "x"))
	_, _, err := kv.Get(ctx, "user")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageOperations.WithLabelValues("memory", "set", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageOperations.WithLabelValues("memory", "get", "success")))
}
