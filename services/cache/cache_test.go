package cachesvc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/alumni/core"
)

func testPageCache(t *testing.T, cache core.PageCache) {
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "/dashboard", "u1")
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, cache.Set(ctx, "/dashboard", "u1", []byte("dash u1")))
	assert.NoError(t, cache.Set(ctx, "/dashboard", "u2", []byte("dash u2")))
	assert.NoError(t, cache.Set(ctx, "/admin", "a1", []byte("admin")))
	assert.NoError(t, cache.Set(ctx, "/admin/master-data", "a1", []byte("master data")))

	page, ok, err := cache.Get(ctx, "/dashboard", "u2")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("dash u2"), page)

	// every variant of the path is dropped, other paths are kept
	assert.NoError(t, cache.Revalidate(ctx, "/dashboard", "/admin"))
	for _, tc := range []struct {
		path, variant string
		want          bool
	}{
		{"/dashboard", "u1", false},
		{"/dashboard", "u2", false},
		{"/admin", "a1", false},
		{"/admin/master-data", "a1", true},
	} {
		_, ok, err = cache.Get(ctx, tc.path, tc.variant)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, ok, tc.path)
	}
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	testPageCache(t, cache)
	assert.Equal(t, []string{"/dashboard", "/admin"}, cache.Revalidated())

	cache.Reset()
	assert.Empty(t, cache.Revalidated())
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := NewMemoryCache(time.Nanosecond)
	ctx := context.Background()
	assert.NoError(t, cache.Set(ctx, "/admin", "a1", []byte("admin")))
	time.Sleep(time.Millisecond)

	_, ok, err := cache.Get(ctx, "/admin", "a1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

// TestRedisCache runs against the server at ALUMNI_TEST_REDIS_ADDR.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("ALUMNI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ALUMNI_TEST_REDIS_ADDR not set")
	}
	cache, err := NewRedisCache(context.Background(), core.RedisConfig{Addr: addr, DB: 15, PageTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewRedisCache(): %v", err)
	}
	defer func() { _ = cache.Close() }()
	defer func() { _ = cache.Revalidate(context.Background(), "/admin/master-data") }()

	testPageCache(t, cache)
}
