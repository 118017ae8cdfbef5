package cache_test

import (
	"errors"
	"testing"

	"github.com/n9te9/federation-router/federation/cache"
)

func TestLRU_PutGet(t *testing.T) {
	c := cache.New[string](2)
	c.Put(1, "one")
	if v, ok := c.Get(1); !ok || v != "one" {
		t.Fatalf("Get(1) = %q, %v; want \"one\", true", v, ok)
	}
	if _, ok := c.Get(2); ok {
		t.Fatal("Get(2) ok = true; want false for missing key")
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := cache.New[string](2)
	c.Put(1, "one")
	c.Put(2, "two")
	c.Get(1) // promote 1, leaving 2 as the LRU entry
	c.Put(3, "three")

	if _, ok := c.Get(2); ok {
		t.Error("key 2 should have been evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("key 1 should still be cached")
	}
	if _, ok := c.Get(3); !ok {
		t.Error("key 3 should be cached")
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestLRU_ZeroCapacityUnbounded(t *testing.T) {
	c := cache.New[int](0)
	for i := uint64(0); i < 50; i++ {
		c.Put(i, int(i))
	}
	if got := c.Len(); got != 50 {
		t.Errorf("Len() = %d, want 50", got)
	}
}

func TestLRU_GetOrCompute(t *testing.T) {
	c := cache.New[string](10)
	calls := 0
	compute := func() (string, error) {
		calls++
		return "computed", nil
	}

	v, err := c.GetOrCompute(1, compute)
	if err != nil || v != "computed" {
		t.Fatalf("GetOrCompute = %q, %v", v, err)
	}
	v, err = c.GetOrCompute(1, compute)
	if err != nil || v != "computed" {
		t.Fatalf("second GetOrCompute = %q, %v", v, err)
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1 (second call should hit cache)", calls)
	}
}

func TestLRU_GetOrComputeErrorNotCached(t *testing.T) {
	c := cache.New[string](10)
	wantErr := errors.New("boom")
	calls := 0
	compute := func() (string, error) {
		calls++
		return "", wantErr
	}

	if _, err := c.GetOrCompute(1, compute); err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if _, err := c.GetOrCompute(1, compute); err != wantErr {
		t.Fatalf("second err = %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Errorf("compute called %d times, want 2 (errors must not be cached)", calls)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := cache.FingerprintString("{ me { name } }")
	b := cache.FingerprintString("{ me { name } }")
	if a != b {
		t.Error("Fingerprint of identical strings should be equal")
	}

	c := cache.FingerprintString("{ me { email } }")
	if a == c {
		t.Error("Fingerprint of different strings should (almost certainly) differ")
	}

	if cache.Fingerprint([]byte("x")) != cache.FingerprintString("x") {
		t.Error("Fingerprint and FingerprintString should agree for the same bytes")
	}
}
