package wasp

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// ───────────────────────────────────────────────────────────────────────────
// Block cache
// ───────────────────────────────────────────────────────────────────────────
//
// Caches decoded page buffers in front of the page file. Generalizes the
// teacher's LRU-only PageBufferPool into five selectable eviction
// strategies, and tracks the same counters the original cache module
// exposes so operators migrating intuition from it see familiar numbers.

// EvictionMode selects how the cache picks a victim when full.
type EvictionMode int

const (
	EvictionTtlFirst EvictionMode = iota // expired entries first, then LRU
	EvictionLruOnly
	EvictionTtlOnly // only expired entries are evicted; with none expired, Put still inserts and the cache grows past Capacity
	EvictionHybrid  // weighted score over recency and frequency
	EvictionLfuOnly
)

// CacheConfig configures the block cache.
type CacheConfig struct {
	Capacity          int
	MaxSamples        int // entries examined per eviction attempt under Hybrid/LFU
	BatchSize         int // entries evicted per purge pass
	EvictionMode      EvictionMode
	PurgeIntervalSecs uint64
	TTL               time.Duration // zero disables time-based expiry
	HybridAlpha       float64       // recency weight
	HybridBeta        float64       // frequency weight
}

// DefaultCacheConfig mirrors the reference implementation's defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:          1024,
		MaxSamples:        5,
		BatchSize:         5,
		EvictionMode:      EvictionTtlFirst,
		PurgeIntervalSecs: 5,
		TTL:               30 * time.Second,
		HybridAlpha:       1.0,
		HybridBeta:        0.1,
	}
}

// CacheMetrics holds atomic counters for cache activity.
type CacheMetrics struct {
	Hits          atomic.Uint64
	Misses        atomic.Uint64
	Inserts       atomic.Uint64
	Removes       atomic.Uint64
	TTLEvictions  atomic.Uint64
	LRUEvictions  atomic.Uint64
	MemoryBytes   atomic.Uint64
	TotalGetNs    atomic.Uint64
	TotalInsertNs atomic.Uint64
	TotalRemoveNs atomic.Uint64
}

// CacheMetricsSnapshot is a point-in-time copy of CacheMetrics for reporting.
type CacheMetricsSnapshot struct {
	Hits, Misses, Inserts, Removes       uint64
	TTLEvictions, LRUEvictions           uint64
	MemoryBytes                          uint64
	TotalGetNs, TotalInsertNs, TotalRemoveNs uint64
}

// Snapshot copies the current counter values.
func (m *CacheMetrics) Snapshot() CacheMetricsSnapshot {
	return CacheMetricsSnapshot{
		Hits: m.Hits.Load(), Misses: m.Misses.Load(),
		Inserts: m.Inserts.Load(), Removes: m.Removes.Load(),
		TTLEvictions: m.TTLEvictions.Load(), LRUEvictions: m.LRUEvictions.Load(),
		MemoryBytes:   m.MemoryBytes.Load(),
		TotalGetNs:    m.TotalGetNs.Load(),
		TotalInsertNs: m.TotalInsertNs.Load(),
		TotalRemoveNs: m.TotalRemoveNs.Load(),
	}
}

type cacheEntry struct {
	id        PageID
	data      []byte
	expiresAt time.Time
	freq      uint64
	elem      *list.Element // position in the LRU list
}

// Cache is the block cache sitting in front of the page file.
type Cache struct {
	mu      sync.Mutex
	cfg     CacheConfig
	entries map[PageID]*cacheEntry
	lru     *list.List // front = most recently used
	metrics CacheMetrics

	stopPurge chan struct{}
	purgeOnce sync.Once
}

// NewCache constructs a cache with the given configuration.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCacheConfig().Capacity
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[PageID]*cacheEntry, cfg.Capacity),
		lru:     list.New(),
	}
}

// Get returns a page's cached bytes, or (nil, false) on miss. A hit
// refreshes recency and bumps the frequency counter used by LFU/Hybrid.
func (c *Cache) Get(id PageID) ([]byte, bool) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.metrics.TotalGetNs.Add(uint64(time.Since(start))) }()

	e, ok := c.entries[id]
	if !ok {
		c.metrics.Misses.Add(1)
		return nil, false
	}
	if c.cfg.TTL > 0 && !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.removeLocked(id)
		c.metrics.Misses.Add(1)
		c.metrics.TTLEvictions.Add(1)
		return nil, false
	}
	e.freq++
	c.lru.MoveToFront(e.elem)
	c.metrics.Hits.Add(1)
	return e.data, true
}

// Put inserts or replaces a page's cached bytes, evicting if necessary.
func (c *Cache) Put(id PageID, data []byte) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.metrics.TotalInsertNs.Add(uint64(time.Since(start))) }()

	if e, ok := c.entries[id]; ok {
		oldLen := len(e.data)
		e.data = data
		e.freq++
		if c.cfg.TTL > 0 {
			e.expiresAt = time.Now().Add(c.cfg.TTL)
		}
		c.lru.MoveToFront(e.elem)
		c.metrics.Removes.Add(1)
		c.metrics.Inserts.Add(1)
		c.metrics.MemoryBytes.Add(uint64(len(data) - oldLen))
		return
	}

	for len(c.entries) >= c.cfg.Capacity {
		if !c.evictOneLocked() {
			break // nothing evictable (e.g. TtlOnly with no expired entries)
		}
	}

	e := &cacheEntry{id: id, data: data, freq: 1}
	if c.cfg.TTL > 0 {
		e.expiresAt = time.Now().Add(c.cfg.TTL)
	}
	e.elem = c.lru.PushFront(e)
	c.entries[id] = e
	c.metrics.Inserts.Add(1)
	c.metrics.MemoryBytes.Add(uint64(len(data)))
}

// Remove evicts a page explicitly (e.g. it was freed by the allocator).
func (c *Cache) Remove(id PageID) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.metrics.TotalRemoveNs.Add(uint64(time.Since(start))) }()
	if c.removeLocked(id) {
		c.metrics.Removes.Add(1)
	}
}

func (c *Cache) removeLocked(id PageID) bool {
	e, ok := c.entries[id]
	if !ok {
		return false
	}
	c.lru.Remove(e.elem)
	delete(c.entries, id)
	c.metrics.MemoryBytes.Add(^uint64(len(e.data) - 1)) // subtract via two's complement
	return true
}

// evictOneLocked picks and removes one victim according to cfg.EvictionMode.
// Returns false if no entry was evictable under the current mode.
func (c *Cache) evictOneLocked() bool {
	switch c.cfg.EvictionMode {
	case EvictionTtlOnly:
		if id, ok := c.oldestExpiredLocked(); ok {
			c.removeLocked(id)
			c.metrics.TTLEvictions.Add(1)
			return true
		}
		return false

	case EvictionTtlFirst:
		if id, ok := c.oldestExpiredLocked(); ok {
			c.removeLocked(id)
			c.metrics.TTLEvictions.Add(1)
			return true
		}
		return c.evictLRULocked()

	case EvictionLruOnly:
		return c.evictLRULocked()

	case EvictionLfuOnly:
		return c.evictBySampledScoreLocked(func(e *cacheEntry) float64 { return -float64(e.freq) })

	case EvictionHybrid:
		now := time.Now()
		return c.evictBySampledScoreLocked(func(e *cacheEntry) float64 {
			recencySecs := now.Sub(lastUsedApprox(c.lru, e)).Seconds()
			return c.cfg.HybridAlpha*recencySecs - c.cfg.HybridBeta*float64(e.freq)
		})

	default:
		return c.evictLRULocked()
	}
}

func (c *Cache) oldestExpiredLocked() (PageID, bool) {
	if c.cfg.TTL <= 0 {
		return 0, false
	}
	now := time.Now()
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		ce := e.Value.(*cacheEntry)
		if !ce.expiresAt.IsZero() && now.After(ce.expiresAt) {
			return ce.id, true
		}
	}
	return 0, false
}

func (c *Cache) evictLRULocked() bool {
	back := c.lru.Back()
	if back == nil {
		return false
	}
	ce := back.Value.(*cacheEntry)
	c.removeLocked(ce.id)
	c.metrics.LRUEvictions.Add(1)
	return true
}

// evictBySampledScoreLocked samples up to MaxSamples entries from the back
// of the LRU list (coldest-first) and evicts the one with the highest
// score, avoiding an O(n) scan of the whole cache on every eviction.
func (c *Cache) evictBySampledScoreLocked(score func(*cacheEntry) float64) bool {
	samples := c.cfg.MaxSamples
	if samples <= 0 {
		samples = 5
	}
	var worst *cacheEntry
	var worstScore float64
	n := 0
	for e := c.lru.Back(); e != nil && n < samples; e, n = e.Prev(), n+1 {
		ce := e.Value.(*cacheEntry)
		s := score(ce)
		if worst == nil || s > worstScore {
			worst, worstScore = ce, s
		}
	}
	if worst == nil {
		return false
	}
	c.removeLocked(worst.id)
	c.metrics.LRUEvictions.Add(1)
	return true
}

// lastUsedApprox approximates recency from list position since the LRU
// list itself only orders entries, it does not timestamp them; entries
// nearer the front are treated as "used more recently than now minus a
// small increment per position back".
func lastUsedApprox(lru *list.List, target *cacheEntry) time.Time {
	now := time.Now()
	pos := 0
	for e := lru.Front(); e != nil; e = e.Next() {
		if e.Value.(*cacheEntry) == target {
			break
		}
		pos++
	}
	return now.Add(-time.Duration(pos) * time.Millisecond)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Metrics returns a snapshot of the cache's counters.
func (c *Cache) Metrics() CacheMetricsSnapshot { return c.metrics.Snapshot() }

// StartPurge launches a background goroutine that periodically sweeps
// expired entries on a single fixed interval.
func (c *Cache) StartPurge() {
	if c.cfg.PurgeIntervalSecs == 0 {
		return
	}
	c.purgeOnce.Do(func() {
		c.stopPurge = make(chan struct{})
		go func() {
			t := time.NewTicker(time.Duration(c.cfg.PurgeIntervalSecs) * time.Second)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					c.purgeExpiredBatch()
				case <-c.stopPurge:
					return
				}
			}
		}()
	})
}

func (c *Cache) purgeExpiredBatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.cfg.BatchSize
	if batch <= 0 {
		batch = 5
	}
	for i := 0; i < batch; i++ {
		if id, ok := c.oldestExpiredLocked(); ok {
			c.removeLocked(id)
			c.metrics.TTLEvictions.Add(1)
		} else {
			break
		}
	}
}

// StopPurge halts the background purge goroutine, if running.
func (c *Cache) StopPurge() {
	if c.stopPurge != nil {
		close(c.stopPurge)
	}
}
