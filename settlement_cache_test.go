package x402

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementKeyStableAndDistinct(t *testing.T) {
	a := testPayload(NetworkTestnet)
	b := testPayload(NetworkTestnet)
	b.Payload.Transaction = "AAAAAgAAAABvdGhlcg=="

	assert.Equal(t, SettlementKey(a), SettlementKey(testPayload(NetworkTestnet)))
	assert.NotEqual(t, SettlementKey(a), SettlementKey(b))
}

func TestSettlementCacheFirstCallerOwnsKey(t *testing.T) {
	cache := NewSettlementCache(time.Minute)

	status, cached, done := cache.CheckAndMark("k1")
	assert.Equal(t, StatusNotFound, status)
	assert.Nil(t, cached)
	require.NotNil(t, done)

	status2, _, _ := cache.CheckAndMark("k1")
	assert.Equal(t, StatusInFlight, status2)

	result := &SettleResponse{Success: true, Transaction: "tx1"}
	cache.Complete("k1", result, done)

	status3, cached3, _ := cache.CheckAndMark("k1")
	assert.Equal(t, StatusCached, status3)
	assert.Equal(t, result, cached3)
}

func TestSettlementCacheWaitForResult(t *testing.T) {
	cache := NewSettlementCache(time.Minute)

	_, _, done := cache.CheckAndMark("k2")

	result := &SettleResponse{Success: true, Transaction: "tx2"}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cache.Complete("k2", result, done)
	}()

	status, _, waiterDone := cache.CheckAndMark("k2")
	require.Equal(t, StatusInFlight, status)

	got, err := cache.WaitForResult(context.Background(), "k2", waiterDone)
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestSettlementCacheWaitHonorsContext(t *testing.T) {
	cache := NewSettlementCache(time.Minute)
	_, _, _ = cache.CheckAndMark("k3")

	status, _, waiterDone := cache.CheckAndMark("k3")
	require.Equal(t, StatusInFlight, status)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.WaitForResult(ctx, "k3", waiterDone)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSettlementCacheFailReleasesKey(t *testing.T) {
	cache := NewSettlementCache(time.Minute)

	_, _, done := cache.CheckAndMark("k4")
	cache.Fail("k4", done)

	assert.Nil(t, cache.Get("k4"))

	status, _, _ := cache.CheckAndMark("k4")
	assert.Equal(t, StatusNotFound, status, "a failed submission must not block retries")
}

func TestSettlementCacheExpiry(t *testing.T) {
	cache := NewSettlementCache(10 * time.Millisecond)

	_, _, done := cache.CheckAndMark("k5")
	cache.Complete("k5", &SettleResponse{Success: true}, done)
	require.NotNil(t, cache.Get("k5"))

	time.Sleep(20 * time.Millisecond)

	status, _, _ := cache.CheckAndMark("k5")
	assert.Equal(t, StatusNotFound, status)
}
