package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/retina-api/pkg/messaging"
)

func newBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	b := NewWithClient(client, zerolog.Nop())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPublishSubscribe(t *testing.T) {
	b := newBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := b.Subscribe(ctx, "retina.notifications")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "retina.notifications", messaging.Message{
		Type:    "patient.added",
		Payload: map[string]string{"id": "P003"},
	}))

	select {
	case raw := <-msgs:
		var got messaging.Message
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "patient.added", got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	b := newBroker(t)
	ctx, cancel := context.WithCancel(context.Background())

	msgs, err := b.Subscribe(ctx, "retina.notifications")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	_, err := NewRedisBroker(Config{URL: "://nope"}, zerolog.Nop())
	assert.Error(t, err)
}
