package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	hits, misses atomic.Int32
}

func (o *countingObserver) Hit(string)  { o.hits.Add(1) }
func (o *countingObserver) Miss(string) { o.misses.Add(1) }

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis, *countingObserver) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	obs := &countingObserver{}
	return NewCache(client, WithObserver(obs)), mr, obs
}

func TestRememberCachesLoaderResult(t *testing.T) {
	c, _, obs := newTestCache(t)
	ctx := context.Background()
	var calls int
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"count": calls}, nil
	}

	var first, second map[string]int
	require.NoError(t, c.Remember(ctx, "blog", "published", time.Minute, &first, loader))
	require.NoError(t, c.Remember(ctx, "blog", "published", time.Minute, &second, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, obs.hits.Load())
	require.EqualValues(t, 1, obs.misses.Load())
}

func TestForgetFamilyOnlyTouchesThatFamily(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	blogCalls, eventCalls := 0, 0
	blogLoader := func(context.Context) (any, error) { blogCalls++; return blogCalls, nil }
	eventLoader := func(context.Context) (any, error) { eventCalls++; return eventCalls, nil }

	var v int
	require.NoError(t, c.Remember(ctx, "blog", "list", time.Minute, &v, blogLoader))
	require.NoError(t, c.Remember(ctx, "events", "upcoming", time.Minute, &v, eventLoader))

	require.NoError(t, c.ForgetFamily(ctx, "blog"))

	require.NoError(t, c.Remember(ctx, "blog", "list", time.Minute, &v, blogLoader))
	require.Equal(t, 2, v)
	require.NoError(t, c.Remember(ctx, "events", "upcoming", time.Minute, &v, eventLoader))
	require.Equal(t, 1, v)
	require.Equal(t, 1, eventCalls)
}

func TestForgetSingleKey(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) { calls++; return calls, nil }

	var v int
	require.NoError(t, c.Remember(ctx, "dues", "stats", time.Minute, &v, loader))
	require.NoError(t, c.Forget(ctx, "dues", "stats"))
	require.NoError(t, c.Remember(ctx, "dues", "stats", time.Minute, &v, loader))
	require.Equal(t, 2, calls)
}

func TestRememberFallsBackWhenBackendDown(t *testing.T) {
	c, mr, _ := newTestCache(t)
	mr.SetError("backend unavailable")

	var v string
	err := c.Remember(context.Background(), "events", "upcoming", time.Minute, &v, func(context.Context) (any, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	require.Equal(t, "fresh", v)
}

func TestRememberPropagatesLoaderError(t *testing.T) {
	c, _, _ := newTestCache(t)
	boom := errors.New("boom")
	var v string
	err := c.Remember(context.Background(), "events", "upcoming", time.Minute, &v, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var c *Cache
	var v int
	require.NoError(t, c.Remember(context.Background(), "x", "y", time.Minute, &v, func(context.Context) (any, error) { return 7, nil }))
	require.Equal(t, 7, v)
	require.NoError(t, c.ForgetFamily(context.Background(), "x"))
}
