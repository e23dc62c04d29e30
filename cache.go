package pagekit

import (
	"sync"
	"time"
)

// EvictionPolicy selects how a GeneralCache chooses its eviction victim.
type EvictionPolicy string

const (
	// PolicyLRU evicts the item with the oldest last-access time.
	PolicyLRU EvictionPolicy = "lru"
	// PolicyLFU evicts the item with the lowest access count.
	PolicyLFU EvictionPolicy = "lfu"
	// PolicyPriority evicts the item with the lowest priority score.
	// Get bumps an item's score by 0.1 and HintAccess by 0.5, biasing
	// retention toward hinted and frequently read items.
	PolicyPriority EvictionPolicy = "priority"
	// PolicyPredictive is reserved for an access-pattern model. No model is
	// implemented: the policy currently behaves exactly like PolicyLRU.
	// Callers that cannot tolerate that should pick an explicit policy.
	PolicyPredictive EvictionPolicy = "predictive"
)

const (
	getPriorityBump  = 0.1
	hintPriorityBump = 0.5
	basePriority     = 1.0
)

// ParsePolicy converts a string into an EvictionPolicy, returning an error
// for unknown values.
func ParsePolicy(s string) (EvictionPolicy, error) {
	switch s {
	case string(PolicyLRU):
		return PolicyLRU, nil
	case string(PolicyLFU):
		return PolicyLFU, nil
	case string(PolicyPriority):
		return PolicyPriority, nil
	case string(PolicyPredictive):
		return PolicyPredictive, nil
	default:
		return "", ErrUnknownPolicy
	}
}

// CachedItem is a point-in-time snapshot of one cache entry, exposed for
// introspection through Items().
type CachedItem struct {
	Key         string
	Value       any
	SizeBytes   int64
	LastAccess  time.Time
	CreatedAt   time.Time
	AccessCount int
	Priority    float64
	Metadata    map[string]any
}

type cacheItem struct {
	key         string
	value       any
	sizeBytes   int64
	lastAccess  time.Time
	createdAt   time.Time
	accessCount int
	priority    float64
	metadata    map[string]any
	seq         uint64 // insertion sequence, deterministic eviction tie-break
}

// CacheStats is a counter snapshot returned by Statistics.
type CacheStats struct {
	MaxSizeBytes int64          `json:"max_size_bytes"`
	SizeBytes    int64          `json:"size_bytes"`
	Items        int            `json:"items"`
	Policy       EvictionPolicy `json:"policy"`
	Hits         uint64         `json:"hits"`
	Misses       uint64         `json:"misses"`
	Evictions    uint64         `json:"evictions"`
}

// CacheConfig defines the configuration for a GeneralCache.
type CacheConfig struct {
	// MaxSizeBytes is the byte budget. Defaults to DefaultCacheBytes.
	MaxSizeBytes int64
	// Policy selects the eviction policy. Defaults to PolicyLRU.
	Policy EvictionPolicy
	// Logger is the logger used for cache events.
	Logger Logger
	// Notify, if set, receives cache mutation events.
	Notify func(CacheEvent)
	// Encoder serializes statistics snapshots. Defaults to JSONEncoder.
	Encoder Encoder
}

// GeneralCache is a byte-bounded cache for arbitrary values with a
// selectable eviction policy. It covers cross-cutting caching needs beyond
// raw page bitmaps: thumbnails, extracted text, fonts, derived data.
//
// Item sizes not provided via PutSize are estimated heuristically from the
// value's apparent shape; the estimate is an approximation, not an exact
// accounting (see EstimateSize).
type GeneralCache struct {
	mu       sync.RWMutex
	items    map[string]*cacheItem
	maxBytes int64
	curBytes int64
	policy   EvictionPolicy
	seq      uint64

	hits      uint64
	misses    uint64
	evictions uint64

	log    Logger
	notify func(CacheEvent)
	enc    Encoder
}

// NewGeneralCache creates an empty cache with the configured budget and
// policy.
func NewGeneralCache(cfg CacheConfig) *GeneralCache {
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = DefaultCacheBytes
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyLRU
	}
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	enc := cfg.Encoder
	if enc == nil {
		enc = &JSONEncoder{}
	}
	return &GeneralCache{
		items:    make(map[string]*cacheItem),
		maxBytes: cfg.MaxSizeBytes,
		policy:   cfg.Policy,
		log:      l,
		notify:   cfg.Notify,
		enc:      enc,
	}
}

// Put stores a value under the key, replacing any existing entry, then
// evicts per the active policy until the cache fits its budget. Returns
// false when the item alone exceeds the entire budget; such items are
// rejected and logged so the size invariant always holds.
func (c *GeneralCache) Put(key string, value any, opts ...PutOption) bool {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}
	size := o.sizeBytes
	if size <= 0 {
		size = EstimateSize(key, value, o.metadata)
	}

	c.mu.Lock()
	if size > c.maxBytes {
		c.mu.Unlock()
		c.log.Warnf("general cache: rejecting item %q: %d bytes exceeds %d byte budget", key, size, c.maxBytes)
		return false
	}

	var events []CacheEvent
	if old, ok := c.items[key]; ok {
		c.curBytes -= old.sizeBytes
		c.log.Debugf("general cache: replacing item %q", key)
	}
	now := time.Now()
	c.seq++
	c.items[key] = &cacheItem{
		key:         key,
		value:       value,
		sizeBytes:   size,
		lastAccess:  now,
		createdAt:   now,
		accessCount: 1,
		priority:    basePriority,
		metadata:    o.metadata,
		seq:         c.seq,
	}
	c.curBytes += size
	events = append(events, CacheEvent{Kind: CacheItemAdded, Key: key, Bytes: size, SizeBytes: c.curBytes, Items: len(c.items)})
	events = c.evictLocked(events)
	c.mu.Unlock()

	c.emit(events)
	return true
}

// Get returns the cached value. A hit refreshes recency, increments the
// access count and bumps the priority score; membership and the tracked
// byte total never change.
func (c *GeneralCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	it.lastAccess = time.Now()
	it.accessCount++
	it.priority += getPriorityBump
	return it.value, true
}

// Contains reports whether the key is cached, without touching access
// bookkeeping.
func (c *GeneralCache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[key]
	return ok
}

// HintAccess tells the cache the item is likely to be needed soon, giving
// it a larger priority bump than a read. Unknown keys are ignored.
func (c *GeneralCache) HintAccess(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		c.log.Debugf("general cache: hint for absent item %q ignored", key)
		return false
	}
	it.priority += hintPriorityBump
	it.lastAccess = time.Now()
	return true
}

// Remove deletes an entry. Returns false for unknown keys.
func (c *GeneralCache) Remove(key string) bool {
	c.mu.Lock()
	it, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.items, key)
	c.curBytes -= it.sizeBytes
	ev := CacheEvent{Kind: CacheItemRemoved, Key: key, Bytes: it.sizeBytes, SizeBytes: c.curBytes, Items: len(c.items)}
	c.mu.Unlock()

	c.emit([]CacheEvent{ev})
	return true
}

// Clear empties the cache.
func (c *GeneralCache) Clear() {
	c.mu.Lock()
	freed := c.curBytes
	n := len(c.items)
	c.items = make(map[string]*cacheItem)
	c.curBytes = 0
	c.mu.Unlock()

	c.log.Debugf("general cache: cleared %d items, freed %d bytes", n, freed)
	c.emit([]CacheEvent{{Kind: CacheCleared, Bytes: freed}})
}

// SetMaxSizeBytes changes the byte budget, evicting immediately if the
// cache no longer fits. Non-positive sizes are ignored.
func (c *GeneralCache) SetMaxSizeBytes(n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	if c.maxBytes == n {
		c.mu.Unlock()
		return
	}
	c.maxBytes = n
	events := c.evictLocked(nil)
	c.mu.Unlock()

	c.log.Infof("general cache: budget set to %d bytes", n)
	c.emit(events)
}

// MaxSizeBytes returns the configured byte budget.
func (c *GeneralCache) MaxSizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxBytes
}

// SizeBytes returns the tracked byte total of live items.
func (c *GeneralCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.curBytes
}

// Len returns the number of cached items.
func (c *GeneralCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Policy returns the active eviction policy.
func (c *GeneralCache) Policy() EvictionPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// SetPolicy switches the eviction policy. Existing items keep their
// bookkeeping; the new policy applies from the next eviction on.
func (c *GeneralCache) SetPolicy(p EvictionPolicy) error {
	if _, err := ParsePolicy(string(p)); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.policy != p {
		c.policy = p
		c.log.Infof("general cache: eviction policy set to %s", p)
	}
	return nil
}

// Items returns a snapshot of every cached entry, in no particular order.
func (c *GeneralCache) Items() []CachedItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CachedItem, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, CachedItem{
			Key:         it.key,
			Value:       it.value,
			SizeBytes:   it.sizeBytes,
			LastAccess:  it.lastAccess,
			CreatedAt:   it.createdAt,
			AccessCount: it.accessCount,
			Priority:    it.priority,
			Metadata:    it.metadata,
		})
	}
	return out
}

// Statistics returns a counter snapshot.
func (c *GeneralCache) Statistics() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		MaxSizeBytes: c.maxBytes,
		SizeBytes:    c.curBytes,
		Items:        len(c.items),
		Policy:       c.policy,
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
	}
}

// StatisticsJSON returns the Statistics snapshot serialized through the
// configured encoder.
func (c *GeneralCache) StatisticsJSON() ([]byte, error) {
	return c.enc.Encode(c.Statistics())
}

// evictLocked removes one victim at a time per the active policy until the
// cache fits its budget or is empty.
func (c *GeneralCache) evictLocked(events []CacheEvent) []CacheEvent {
	for c.curBytes > c.maxBytes && len(c.items) > 0 {
		victim := c.victimLocked()
		if victim == nil {
			break
		}
		delete(c.items, victim.key)
		c.curBytes -= victim.sizeBytes
		c.evictions++
		c.log.Debugf("general cache: evicted item %q (%d bytes, policy=%s)", victim.key, victim.sizeBytes, c.policy)
		events = append(events, CacheEvent{Kind: CacheItemRemoved, Key: victim.key, Bytes: victim.sizeBytes, SizeBytes: c.curBytes, Items: len(c.items)})
	}
	return events
}

// victimLocked picks the item to evict under the active policy. Ties break
// on insertion sequence so repeated runs evict deterministically.
func (c *GeneralCache) victimLocked() *cacheItem {
	var victim *cacheItem
	for _, it := range c.items {
		if victim == nil {
			victim = it
			continue
		}
		if c.prefersEviction(it, victim) {
			victim = it
		}
	}
	return victim
}

func (c *GeneralCache) prefersEviction(a, b *cacheItem) bool {
	switch c.policy {
	case PolicyLFU:
		if a.accessCount != b.accessCount {
			return a.accessCount < b.accessCount
		}
	case PolicyPriority:
		if a.priority != b.priority {
			return a.priority < b.priority
		}
	default: // PolicyLRU, and PolicyPredictive which degrades to LRU
		if !a.lastAccess.Equal(b.lastAccess) {
			return a.lastAccess.Before(b.lastAccess)
		}
	}
	return a.seq < b.seq
}

func (c *GeneralCache) emit(events []CacheEvent) {
	if c.notify == nil {
		return
	}
	for _, ev := range events {
		c.notify(ev)
	}
}
