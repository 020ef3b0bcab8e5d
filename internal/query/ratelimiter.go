package query

import (
	"sync"
	"time"
)

// TokenBucket is a non-blocking per-collection rate limiter, adapted
// from the storage layer's channel-based RateLimiter: the same
// token-refill idea, with the refill computed from the elapsed time
// when a token is taken, and TryTake reports immediately instead of
// blocking, since the executor must never suspend inside the core.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	refillRate int // tokens added per second
	lastRefill time.Time
}

// NewTokenBucket creates a bucket that holds at most capacity tokens
// and refills at refillPerSecond tokens per second, starting full.
func NewTokenBucket(capacity, refillPerSecond int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillPerSecond,
		lastRefill: time.Now(),
	}
}

// TryTake attempts to consume one token. On success it returns (true,
// 0). On failure it returns (false, retryAfterMs) estimating how long
// until a token becomes available.
func (b *TokenBucket) TryTake() (bool, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens > 0 {
		b.tokens--
		return true, 0
	}

	if b.refillRate <= 0 {
		return false, -1
	}
	msPerToken := int64(1000) / int64(b.refillRate)
	if msPerToken < 1 {
		msPerToken = 1
	}
	return false, msPerToken
}

func (b *TokenBucket) refillLocked() {
	if b.refillRate <= 0 {
		return
	}
	elapsed := time.Since(b.lastRefill)
	add := int(elapsed.Seconds() * float64(b.refillRate))
	if add <= 0 {
		return
	}
	b.tokens += add
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = time.Now()
}

// Limiter holds one TokenBucket per collection so that a burst against
// one collection never starves another.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*TokenBucket
	// defaultCapacity/defaultRefill seed buckets for collections that
	// have not been explicitly configured.
	defaultCapacity int
	defaultRefill   int
}

// NewLimiter builds a limiter that lazily creates a bucket per
// collection using the given default capacity and refill rate.
func NewLimiter(defaultCapacity, defaultRefill int) *Limiter {
	return &Limiter{
		buckets:         make(map[string]*TokenBucket),
		defaultCapacity: defaultCapacity,
		defaultRefill:   defaultRefill,
	}
}

// Configure overrides the bucket for a specific collection.
func (l *Limiter) Configure(collection string, capacity, refillPerSecond int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[collection] = NewTokenBucket(capacity, refillPerSecond)
}

func (l *Limiter) bucketFor(collection string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[collection]
	if !ok {
		b = NewTokenBucket(l.defaultCapacity, l.defaultRefill)
		l.buckets[collection] = b
	}
	return b
}

// Allow consults the named collection's bucket. A nil error means the
// call may proceed; otherwise it is ErrRateLimited (no suggested
// retry) or *RetryableRateLimit (with one).
func (l *Limiter) Allow(collection string) error {
	ok, retryAfterMs := l.bucketFor(collection).TryTake()
	if ok {
		return nil
	}
	if retryAfterMs < 0 {
		return ErrRateLimited
	}
	return &RetryableRateLimit{RetryAfterMs: retryAfterMs}
}
