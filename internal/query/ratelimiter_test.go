package query

import "testing"

func TestTokenBucketAllowsUpToCapacity(t *testing.T) {
	b := NewTokenBucket(3, 0)
	for i := 0; i < 3; i++ {
		ok, _ := b.TryTake()
		if !ok {
			t.Fatalf("expected token %d to be available", i)
		}
	}
	ok, retry := b.TryTake()
	if ok {
		t.Fatal("expected bucket to be exhausted after capacity tokens taken")
	}
	if retry != -1 {
		t.Fatalf("expected no-refill bucket to report no retry estimate, got %d", retry)
	}
}

func TestTokenBucketRefillSuggestsRetryAfter(t *testing.T) {
	b := NewTokenBucket(1, 10)
	ok, _ := b.TryTake()
	if !ok {
		t.Fatal("expected first token to be available")
	}
	ok, retry := b.TryTake()
	if ok {
		t.Fatal("expected bucket to be exhausted immediately after single token taken")
	}
	if retry <= 0 {
		t.Fatalf("expected a positive retry-after estimate with nonzero refill rate, got %d", retry)
	}
}

func TestLimiterIsolatesCollectionsFromEachOther(t *testing.T) {
	l := NewLimiter(1, 0)
	if err := l.Allow("users"); err != nil {
		t.Fatalf("expected first call to users to be allowed: %v", err)
	}
	if err := l.Allow("orders"); err != nil {
		t.Fatalf("expected orders to have its own independent bucket: %v", err)
	}
	if err := l.Allow("users"); err == nil {
		t.Fatal("expected second call to users to be rate limited")
	}
}

func TestLimiterConfigureOverridesDefault(t *testing.T) {
	l := NewLimiter(1, 0)
	l.Configure("bulk", 5, 0)
	for i := 0; i < 5; i++ {
		if err := l.Allow("bulk"); err != nil {
			t.Fatalf("call %d: expected configured capacity to allow 5 calls: %v", i, err)
		}
	}
	if err := l.Allow("bulk"); err == nil {
		t.Fatal("expected 6th call to exceed the configured capacity")
	}
}
