package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("Integration test - set INTEGRATION=1 to run against a Redis container")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := NewClient(endpoint, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAttempts(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, ok, err := client.LastAttempt(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Now().Truncate(time.Millisecond)
	require.NoError(t, client.RecordAttempt(ctx, "buyer@example.com", at, 30*time.Second))
	// an older attempt never replaces a newer one
	require.NoError(t, client.RecordAttempt(ctx, "buyer@example.com", at.Add(-time.Second), 30*time.Second))

	last, ok, err := client.LastAttempt(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(last))

	ttl, err := client.GetClient().PTTL(ctx, attemptKey("buyer@example.com")).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= 30*time.Second)
}

func TestLocks(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	ok, err := client.AcquireLock(ctx, "reconcile:pi_1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.AcquireLock(ctx, "reconcile:pi_1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.ReleaseLock(ctx, "reconcile:pi_1"))
	ok, err = client.AcquireLock(ctx, "reconcile:pi_1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotencyAndGeoCache(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	ok, err := client.ClaimIdempotencyKey(ctx, "webhook:evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.ClaimIdempotencyKey(ctx, "webhook:evt_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := client.CheckIdempotencyKey(ctx, "webhook:evt_1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, ok, err = client.GetCountry(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, client.SetCountry(ctx, "203.0.113.7", "NL", time.Hour))
	country, ok, err := client.GetCountry(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "NL", country)
}
