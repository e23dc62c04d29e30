package pagekit

import (
	"container/list"
	"image"
	"math"
	"sync"
	"time"
)

// DefaultCacheBytes is the byte budget caches use when none is configured.
const DefaultCacheBytes = 50 * 1024 * 1024 // 50 MB

// CacheEventKind labels cache notifications.
type CacheEventKind string

const (
	CacheItemAdded   CacheEventKind = "added"
	CacheItemRemoved CacheEventKind = "removed" // explicit removal or eviction
	CacheCleared     CacheEventKind = "cleared"
)

// CacheEvent describes a cache mutation. Key is a PageKey for the page cache
// and a string for the general cache. Events are delivered synchronously on
// the mutating goroutine, after the cache lock is released; callbacks may
// call back into the cache.
type CacheEvent struct {
	Kind      CacheEventKind
	Key       any
	Bytes     int64 // byte cost of the affected item (total freed for Cleared)
	SizeBytes int64 // tracked total after the operation
	Items     int   // item count after the operation
}

// PageKey identifies one rendered page bitmap. Zoom is stored quantized to
// thousandths so keys compare fuzzily on zoom while staying hashable and
// deterministic.
type PageKey struct {
	Doc      DocumentID
	Page     int
	Zoom     int32
	Rotation int
	Width    int
	Height   int
}

// NewPageKey builds a key from render parameters.
func NewPageKey(doc DocumentID, page int, zoom float64, rotation, width, height int) PageKey {
	return PageKey{
		Doc:      doc,
		Page:     page,
		Zoom:     quantizeZoom(zoom),
		Rotation: rotation,
		Width:    width,
		Height:   height,
	}
}

// KeyForRequest derives the cache key a render request's result would be
// stored under.
func KeyForRequest(req *RenderRequest) PageKey {
	return NewPageKey(req.Page.Document(), req.Page.Index(), req.Zoom, req.Rotation, req.Width, req.Height)
}

func quantizeZoom(z float64) int32 { return int32(math.Round(z * 1000)) }

// PageCacheConfig defines the configuration for a PageImageCache.
type PageCacheConfig struct {
	// MaxSizeBytes is the byte budget. Defaults to DefaultCacheBytes.
	MaxSizeBytes int64
	// Logger is the logger used for cache events.
	Logger Logger
	// Notify, if set, receives cache mutation events.
	Notify func(CacheEvent)
}

type pageEntry struct {
	key        PageKey
	img        *image.RGBA
	size       int64
	lastAccess time.Time
}

// PageImageCache is a byte-bounded cache of rendered page bitmaps with
// strict least-recently-used eviction. Get returns a deep copy so callers
// never alias cache-owned pixels. The cache owns no goroutine; it is safe
// for concurrent use from the render and load paths.
type PageImageCache struct {
	mu       sync.RWMutex
	entries  map[PageKey]*list.Element
	lru      *list.List // front = most recently used
	maxBytes int64
	curBytes int64

	log    Logger
	notify func(CacheEvent)
}

// NewPageImageCache creates an empty cache with the configured budget.
func NewPageImageCache(cfg PageCacheConfig) *PageImageCache {
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = DefaultCacheBytes
	}
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	return &PageImageCache{
		entries:  make(map[PageKey]*list.Element),
		lru:      list.New(),
		maxBytes: cfg.MaxSizeBytes,
		log:      l,
		notify:   cfg.Notify,
	}
}

// Get returns a copy of the cached bitmap, or nil on a miss. A hit counts as
// an access and refreshes the entry's recency.
func (c *PageImageCache) Get(key PageKey) *image.RGBA {
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	e := el.Value.(*pageEntry)
	e.lastAccess = time.Now()
	c.lru.MoveToFront(el)
	img := cloneRGBA(e.img)
	c.mu.Unlock()
	return img
}

// Contains reports whether the key is cached, without touching recency.
func (c *PageImageCache) Contains(key PageKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Put stores a bitmap under the key, evicting least-recently-used entries
// until the cache fits its budget. The image is retained as given; callers
// must not mutate it afterwards. A bitmap larger than the entire budget is
// rejected and logged so the size invariant always holds.
func (c *PageImageCache) Put(key PageKey, img *image.RGBA) {
	if img == nil {
		return
	}
	size := imageCost(img)
	if size == 0 {
		return
	}

	c.mu.Lock()
	if size > c.maxBytes {
		c.mu.Unlock()
		c.log.Warnf("page cache: rejecting %d byte image for page %d of %s: exceeds %d byte budget",
			size, key.Page, key.Doc, c.maxBytes)
		return
	}

	var events []CacheEvent
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*pageEntry)
		c.curBytes += size - e.size
		e.img = img
		e.size = size
		e.lastAccess = time.Now()
		c.lru.MoveToFront(el)
	} else {
		e := &pageEntry{key: key, img: img, size: size, lastAccess: time.Now()}
		c.entries[key] = c.lru.PushFront(e)
		c.curBytes += size
	}
	events = append(events, CacheEvent{Kind: CacheItemAdded, Key: key, Bytes: size, SizeBytes: c.curBytes, Items: len(c.entries)})
	events = c.evictLocked(events)
	c.mu.Unlock()

	c.emit(events)
}

// ClearForDocument removes every entry for the given document and returns
// how many were removed.
func (c *PageImageCache) ClearForDocument(doc DocumentID) int {
	c.mu.Lock()
	var events []CacheEvent
	for key, el := range c.entries {
		if key.Doc != doc {
			continue
		}
		e := el.Value.(*pageEntry)
		c.lru.Remove(el)
		delete(c.entries, key)
		c.curBytes -= e.size
		events = append(events, CacheEvent{Kind: CacheItemRemoved, Key: key, Bytes: e.size, SizeBytes: c.curBytes, Items: len(c.entries)})
	}
	n := len(events)
	c.mu.Unlock()

	if n > 0 {
		c.log.Debugf("page cache: cleared %d entries for document %s", n, doc)
	}
	c.emit(events)
	return n
}

// Clear empties the cache.
func (c *PageImageCache) Clear() {
	c.mu.Lock()
	freed := c.curBytes
	c.entries = make(map[PageKey]*list.Element)
	c.lru.Init()
	c.curBytes = 0
	c.mu.Unlock()

	c.emit([]CacheEvent{{Kind: CacheCleared, Bytes: freed}})
}

// SetMaxSizeBytes changes the byte budget, evicting immediately if the
// cache no longer fits. Non-positive sizes are ignored.
func (c *PageImageCache) SetMaxSizeBytes(n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.maxBytes = n
	events := c.evictLocked(nil)
	c.mu.Unlock()

	c.emit(events)
}

// MaxSizeBytes returns the configured byte budget.
func (c *PageImageCache) MaxSizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxBytes
}

// SizeBytes returns the tracked byte total of live entries.
func (c *PageImageCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.curBytes
}

// Len returns the number of cached bitmaps.
func (c *PageImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *PageImageCache) evictLocked(events []CacheEvent) []CacheEvent {
	for c.curBytes > c.maxBytes && c.lru.Len() > 0 {
		el := c.lru.Back()
		e := el.Value.(*pageEntry)
		c.lru.Remove(el)
		delete(c.entries, e.key)
		c.curBytes -= e.size
		c.log.Debugf("page cache: evicted page %d of %s (%d bytes)", e.key.Page, e.key.Doc, e.size)
		events = append(events, CacheEvent{Kind: CacheItemRemoved, Key: e.key, Bytes: e.size, SizeBytes: c.curBytes, Items: len(c.entries)})
	}
	return events
}

func (c *PageImageCache) emit(events []CacheEvent) {
	if c.notify == nil {
		return
	}
	for _, ev := range events {
		c.notify(ev)
	}
}
