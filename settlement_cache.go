package walletcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// SettlementCache provides idempotency for offer settlement: a retried
// attempt for the same offer document returns the earlier successful outcome
// instead of asking the wallet to spend the coins twice, and concurrent
// attempts for the same document coalesce onto one submission.
type SettlementCache struct {
	mu       sync.Mutex
	settled  map[string]settledEntry
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

type settledEntry struct {
	outcome Outcome
	expires time.Time
}

func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		settled:  make(map[string]settledEntry),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// SettlementKey derives the cache key for an offer document. The document
// text fully determines the spend, so its hash is the attempt identity.
func SettlementKey(doc string) string {
	hash := sha256.Sum256([]byte(doc))
	return hex.EncodeToString(hash[:])
}

// AttemptStatus is the result of checking the cache for an offer document.
type AttemptStatus int

const (
	// AttemptNew: no cached outcome and nothing in flight; the caller now
	// owns the in-flight marker and must Complete or Fail it.
	AttemptNew AttemptStatus = iota
	// AttemptCached: a prior attempt succeeded inside the TTL window.
	AttemptCached
	// AttemptInFlight: another goroutine is settling this document.
	AttemptInFlight
)

// CheckAndMark atomically checks for a cached outcome and otherwise marks
// the key in flight. For AttemptCached the outcome is returned; for
// AttemptInFlight the channel closes when the other attempt resolves; for
// AttemptNew the channel is the marker the caller must resolve.
func (c *SettlementCache) CheckAndMark(key string) (AttemptStatus, Outcome, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if out, ok := c.lookupLocked(key); ok {
		return AttemptCached, out, nil
	}
	if done, exists := c.inFlight[key]; exists {
		return AttemptInFlight, Outcome{}, done
	}
	done := make(chan struct{})
	c.inFlight[key] = done
	return AttemptNew, Outcome{}, done
}

// WaitForResult blocks until an in-flight attempt resolves or ctx expires.
// The returned bool is false when the other attempt failed and left nothing
// cached, in which case the caller should retry.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (Outcome, bool, error) {
	select {
	case <-done:
		out, ok := c.Get(key)
		return out, ok, nil
	case <-ctx.Done():
		return Outcome{}, false, ctx.Err()
	}
}

// Get returns the cached outcome for key if present and unexpired.
func (c *SettlementCache) Get(key string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key)
}

// Complete caches a successful outcome, drops the in-flight marker, and
// releases any waiters. Expired entries are swept opportunistically here so
// the map never grows beyond what a TTL window of attempts produced.
func (c *SettlementCache) Complete(key string, out Outcome, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.settled {
		if now.After(e.expires) {
			delete(c.settled, k)
		}
	}
	c.settled[key] = settledEntry{outcome: out, expires: now.Add(c.ttl)}
	delete(c.inFlight, key)
	close(done)
}

// Fail drops the in-flight marker without caching anything, so the document
// can be retried. Waiters are released empty-handed.
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

// lookupLocked evicts the entry for key if expired. Callers hold c.mu.
func (c *SettlementCache) lookupLocked(key string) (Outcome, bool) {
	e, ok := c.settled[key]
	if !ok {
		return Outcome{}, false
	}
	if time.Now().After(e.expires) {
		delete(c.settled, key)
		return Outcome{}, false
	}
	return e.outcome, true
}
