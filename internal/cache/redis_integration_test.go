//go:build integration

package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/testutil/containers"
)

func TestRedisCache(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	c := NewRedisCache(rc.Client)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, c.Del(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	ttl := rc.Client.TTL(ctx, "counter").Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	// A zero ttl leaves the key persistent.
	_, err = c.Incr(ctx, "generation", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), rc.Client.TTL(ctx, "generation").Val())
}

func TestRedisPublishSubscribe(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := NewRedisPublisher(rc.Client)

	events, stop, err := p.Subscribe(ctx, 7)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, p.Publish(ctx, model.ClassEvent{Type: model.EventGradesChanged, ClassSN: 8}))
	require.NoError(t, p.Publish(ctx, model.ClassEvent{Type: model.EventRosterChanged, ClassSN: 7, Added: []int{3}}))

	select {
	case payload := <-events:
		var evt model.ClassEvent
		require.NoError(t, json.Unmarshal(payload, &evt))
		assert.Equal(t, model.EventRosterChanged, evt.Type)
		assert.Equal(t, []int{3}, evt.Added)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	stop()
	_, open := <-events
	assert.False(t, open)
}
