package walletcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSettlementKey(t *testing.T) {
	key1 := SettlementKey("offer1abc")
	key2 := SettlementKey("offer1def")
	key3 := SettlementKey("offer1abc")

	if key1 != key3 {
		t.Errorf("same document produced different keys: %s vs %s", key1, key3)
	}
	if key1 == key2 {
		t.Error("different documents produced the same key")
	}
	if len(key1) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(key1))
	}
}

func TestSettlementCacheCheckAndMark(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := SettlementKey("offer1abc")

	status, _, done := cache.CheckAndMark(key)
	if status != AttemptNew {
		t.Fatalf("first check = %v, want AttemptNew", status)
	}

	cache.Complete(key, Outcome{Status: SettleSuccess, TxID: "tx1"}, done)

	status, cached, _ := cache.CheckAndMark(key)
	if status != AttemptCached {
		t.Fatalf("second check = %v, want AttemptCached", status)
	}
	if cached.TxID != "tx1" {
		t.Errorf("cached TxID = %q", cached.TxID)
	}
}

func TestSettlementCacheFailAllowsRetry(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := SettlementKey("offer1abc")

	_, _, done := cache.CheckAndMark(key)
	cache.Fail(key, done)

	status, _, _ := cache.CheckAndMark(key)
	if status != AttemptNew {
		t.Errorf("post-failure check = %v, want AttemptNew", status)
	}
}

func TestSettlementCacheExpiry(t *testing.T) {
	cache := NewSettlementCache(10 * time.Millisecond)
	key := SettlementKey("offer1abc")

	_, _, done := cache.CheckAndMark(key)
	cache.Complete(key, Outcome{Status: SettleSuccess, TxID: "tx1"}, done)

	time.Sleep(30 * time.Millisecond)

	status, _, _ := cache.CheckAndMark(key)
	if status != AttemptNew {
		t.Errorf("post-expiry check = %v, want AttemptNew", status)
	}
}

func TestSettlementCacheInFlightCoalesces(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := SettlementKey("offer1abc")

	_, _, done := cache.CheckAndMark(key)

	status, _, wait := cache.CheckAndMark(key)
	if status != AttemptInFlight {
		t.Fatalf("concurrent check = %v, want AttemptInFlight", status)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var got Outcome
	var ok bool
	go func() {
		defer wg.Done()
		got, ok, _ = cache.WaitForResult(context.Background(), key, wait)
	}()

	cache.Complete(key, Outcome{Status: SettleSuccess, TxID: "tx9"}, done)
	wg.Wait()

	if !ok || got.TxID != "tx9" {
		t.Errorf("WaitForResult() = %+v, %v", got, ok)
	}
}

func TestSettlementCacheWaitRespectsContext(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := SettlementKey("offer1abc")
	_, _, done := cache.CheckAndMark(key)
	_ = done

	_, _, wait := cache.CheckAndMark(key)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, _, err := cache.WaitForResult(ctx, key, wait); err == nil {
		t.Fatal("WaitForResult() ignored context deadline")
	}
}
