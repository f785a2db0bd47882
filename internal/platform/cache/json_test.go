package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*JSONCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewJSONCache(client, "test:", ttl), mr
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Name: "acme"}, nil
	}

	var first, second payload
	require.NoError(t, c.FetchJSON(ctx, "k", &first, loader))
	require.NoError(t, c.FetchJSON(ctx, "k", &second, loader))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "acme", second.Name)
	assert.True(t, mr.Exists("test:k"))

	require.NoError(t, c.Delete(ctx, "k"))
	assert.False(t, mr.Exists("test:k"))
}

func TestFetchJSONDisabledWithoutTTL(t *testing.T) {
	c, mr := newTestCache(t, 0)
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Name: "acme"}, nil
	}
	var out payload
	require.NoError(t, c.FetchJSON(context.Background(), "k", &out, loader))
	require.NoError(t, c.FetchJSON(context.Background(), "k", &out, loader))
	assert.Equal(t, 2, calls)
	assert.False(t, mr.Exists("test:k"))
}

func TestFetchJSONLoaderError(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	boom := errors.New("boom")
	var out payload
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := New(context.Background(), Options{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	_, err = New(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}
