package x402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// SettlementCache provides idempotency for settle operations by caching
// settlement outcomes and tracking in-flight submissions. Settlement against
// the same signed transaction from two concurrent calls is serialized so
// that only one ledger submission occurs; the other caller receives the
// already-settled result.
type SettlementCache struct {
	mu       sync.Mutex
	results  map[string]*SettleResponse
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

// NewSettlementCache creates a new settlement cache with the specified TTL.
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		results:  make(map[string]*SettleResponse),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// SettlementKey derives the idempotency key for a payment payload from its
// signed transaction envelope. Two payloads carry the same key exactly when
// they carry the same signed transaction.
func SettlementKey(payload PaymentPayload) string {
	hash := sha256.Sum256([]byte(payload.Payload.Transaction))
	return hex.EncodeToString(hash[:])
}

// SettlementStatus represents the result of checking the cache.
type SettlementStatus int

const (
	// StatusNotFound means no cached result and no in-flight submission.
	StatusNotFound SettlementStatus = iota
	// StatusCached means a cached result was found.
	StatusCached
	// StatusInFlight means another call is currently settling this transaction.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and marks the key as in-flight if
// needed. Returns StatusCached with the result, StatusInFlight with a wait
// channel, or StatusNotFound with a done channel the caller must later pass
// to Complete or Fail.
func (c *SettlementCache) CheckAndMark(key string) (SettlementStatus, *SettleResponse, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, exists := c.expiry[key]; exists {
		if time.Now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if done, exists := c.inFlight[key]; exists {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return StatusNotFound, nil, done
}

// WaitForResult waits for an in-flight submission to complete, respecting
// context cancellation. Returns nil if the in-flight submission failed
// without caching a result.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*SettleResponse, error) {
	select {
	case <-done:
		return c.Get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get retrieves a cached settlement response, or nil when absent or expired.
func (c *SettlementCache) Get(key string) *SettleResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, exists := c.expiry[key]
	if !exists {
		return nil
	}
	if time.Now().After(expiry) {
		delete(c.results, key)
		delete(c.expiry, key)
		return nil
	}
	return c.results[key]
}

// Complete caches the settlement outcome and signals any waiting callers.
func (c *SettlementCache) Complete(key string, response *SettleResponse, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = response
	c.expiry[key] = time.Now().Add(c.ttl)
	delete(c.inFlight, key)
	close(done)

	c.cleanupExpiredLocked()
}

// Fail removes the in-flight marker without caching a result, allowing the
// settlement to be retried (used only for transport failures where the
// submission never reached the ledger).
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

func (c *SettlementCache) cleanupExpiredLocked() {
	now := time.Now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
}
