package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestVersionInitialises(t *testing.T) {
	c := newTestCache(t)
	ver, err := c.Version(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)
}

func TestBumpChangesKeys(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	before, err := c.BuildKey(ctx, "ledger", "positions", "all")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.BuildKey(ctx, "ledger", "positions", "all")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestFetchJSONCachesLoader(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return map[string]int{"total": 42}, nil
	}

	var first map[string]int
	require.NoError(t, c.FetchJSON(ctx, "k1", &first, loader))
	require.Equal(t, 42, first["total"])

	var second map[string]int
	require.NoError(t, c.FetchJSON(ctx, "k1", &second, loader))
	require.Equal(t, 42, second["total"])
	require.Equal(t, 1, calls)
}

func TestFetchJSONNilClient(t *testing.T) {
	var c *Cache
	var out map[string]int
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (interface{}, error) {
		return map[string]int{"n": 7}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, out["n"])
}
