package geocode

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"

	"github.com/jvkenny/CLFleadservice/internal/domain"
	"github.com/jvkenny/CLFleadservice/internal/observability"
)

// CachedResolver wraps a Resolver with in-memory LRU caches for the
// per-keystroke and per-map-click operations (suggest and reverse). Search
// and suggestion resolution pass through: submissions are rare and magic keys
// are single-use by contract.
type CachedResolver struct {
	inner   domain.Resolver
	suggest *lruCache[[]domain.Suggestion]
	reverse *lruCache[string]
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator around a resolver.
func NewCachedResolver(inner domain.Resolver, maxEntries int, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		suggest: newLRUCache[[]domain.Suggestion](maxEntries),
		reverse: newLRUCache[string](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedResolver) Search(ctx context.Context, text string, bias *orb.Point) ([]domain.GeocodeResult, error) {
	return c.inner.Search(ctx, text, bias)
}

func (c *CachedResolver) Suggest(ctx context.Context, text string, bias *orb.Point) ([]domain.Suggestion, error) {
	key := "sug:" + text + "|" + biasKey(bias)
	if cached, ok := c.suggest.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("suggest", "hit").Inc()
		return cached, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("suggest", "miss").Inc()

	suggestions, err := c.inner.Suggest(ctx, text, bias)
	if err != nil {
		return suggestions, err
	}
	// Only cache non-empty results so transient failures can be retried.
	if len(suggestions) > 0 {
		c.suggest.put(key, suggestions)
	}
	return suggestions, nil
}

func (c *CachedResolver) ResolveSuggestion(ctx context.Context, text, magicKey string) (*domain.GeocodeResult, error) {
	return c.inner.ResolveSuggestion(ctx, text, magicKey)
}

func (c *CachedResolver) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lon)
	if cached, ok := c.reverse.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("reverse", "hit").Inc()
		return cached, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("reverse", "miss").Inc()

	address, err := c.inner.Reverse(ctx, lat, lon)
	if err != nil {
		return address, err
	}
	if address != "" {
		c.reverse.put(key, address)
	}
	return address, nil
}

func biasKey(bias *orb.Point) string {
	if bias == nil {
		return "default"
	}
	return fmt.Sprintf("%.6f,%.6f", bias.Lon(), bias.Lat())
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
