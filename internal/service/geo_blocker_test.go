package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCountryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (c *memCountryCache) GetCountry(_ context.Context, ip string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	country, ok := c.entries[ip]
	return country, ok, nil
}

func (c *memCountryCache) SetCountry(_ context.Context, ip, country string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ip] = country
	return nil
}

func TestGeoBlocker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		switch r.URL.Path {
		case "/203.0.113.7/json":
			_, _ = w.Write([]byte(`{"ip":"203.0.113.7","country":"ru"}`))
		case "/198.51.100.1/json":
			_, _ = w.Write([]byte(`{"ip":"198.51.100.1","country":"NL"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	store := newMemStore()
	store.blocked["RU"] = true
	cache := &memCountryCache{entries: make(map[string]string)}
	blocker := NewGeoBlocker(NewIPInfoResolver(srv.URL, "secret", srv.Client()), cache, store, "")
	ctx := context.Background()

	country, blocked, err := blocker.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, "RU", country)
	assert.True(t, blocked)

	// served from the cache
	_, blocked, err = blocker.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, int32(1), hits.Load())

	country, blocked, err = blocker.Check(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.Equal(t, "NL", country)
	assert.False(t, blocked)

	// lookup failures fall back to allowing the request
	country, blocked, err = blocker.Check(ctx, "192.0.2.44")
	require.NoError(t, err)
	assert.Empty(t, country)
	assert.False(t, blocked)
}

func TestGeoBlockerLocalAddressesUseFallback(t *testing.T) {
	store := newMemStore()
	store.blocked["DE"] = true
	resolver := NewIPInfoResolver("http://127.0.0.1:1", "", nil)

	allow := NewGeoBlocker(resolver, nil, store, "")
	_, blocked, err := allow.Check(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, blocked)

	deny := NewGeoBlocker(resolver, nil, store, "de")
	country, blocked, err := deny.Check(context.Background(), "0.0.0.0")
	require.NoError(t, err)
	assert.Equal(t, "DE", country)
	assert.True(t, blocked)

	// no token means no lookup
	country, blocked, err = deny.Check(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "DE", country)
	assert.True(t, blocked)
}
