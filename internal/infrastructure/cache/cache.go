// Package cache memoizes query results for the lifetime of the process.
//
// Entries never expire. They are dropped only by Invalidate or Flush. Two
// requests that miss on the same key at the same time both compute and both
// store; the last write wins. That race is harmless because every computation
// for a key is deterministic over the same read-only data.
package cache

import (
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
)

const keySep = "|"

// GlobalScope is the area component of keys that are not tied to one area.
// Normalized area keys never contain a hyphen, so no AreaPrefix matches it.
const GlobalScope = "-"

// ResultCache is a process-lifetime key/value store for computed results.
// It is safe for concurrent use.
type ResultCache struct {
	items   *gocache.Cache
	metrics *Metrics
}

type Option func(*ResultCache)

// WithMetrics records hits, misses and invalidations into m.
func WithMetrics(m *Metrics) Option {
	return func(c *ResultCache) {
		c.metrics = m
	}
}

func New(opts ...Option) *ResultCache {
	c := &ResultCache{
		// cleanup interval 0 disables the janitor goroutine; nothing expires anyway.
		items: gocache.New(gocache.NoExpiration, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stored value for key.
func (c *ResultCache) Get(key string) (any, bool) {
	v, ok := c.items.Get(key)
	if c.metrics != nil {
		if ok {
			c.metrics.Hits.Inc()
		} else {
			c.metrics.Misses.Inc()
		}
	}
	return v, ok
}

func (c *ResultCache) Set(key string, value any) {
	c.items.Set(key, value, gocache.NoExpiration)
	c.updateSize()
}

// Invalidate removes every entry whose key starts with prefix and returns how
// many were removed.
func (c *ResultCache) Invalidate(prefix string) int {
	removed := 0
	for key := range c.items.Items() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
			removed++
		}
	}
	if c.metrics != nil && removed > 0 {
		c.metrics.Invalidated.Add(float64(removed))
	}
	c.updateSize()
	return removed
}

func (c *ResultCache) Flush() {
	c.items.Flush()
	c.updateSize()
}

func (c *ResultCache) Len() int {
	return c.items.ItemCount()
}

func (c *ResultCache) updateSize() {
	if c.metrics != nil {
		c.metrics.Entries.Set(float64(c.items.ItemCount()))
	}
}

// GetOrCompute returns the value cached under key, or runs compute, stores its
// result and returns it. compute is not called on a hit. Errors are returned
// as-is and never cached.
func GetOrCompute[T any](c *ResultCache, key string, compute func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Key builds a deterministic cache key: area|route|param...
// All keys for one area share AreaPrefix(area).
func Key(area, route string, params ...string) string {
	parts := make([]string, 0, len(params)+2)
	parts = append(parts, area, route)
	parts = append(parts, params...)
	return strings.Join(parts, keySep)
}

// AreaPrefix is the key prefix grouping every entry for one area.
func AreaPrefix(area string) string {
	return area + keySep
}

// Metrics are the Prometheus instruments for a ResultCache.
type Metrics struct {
	Hits        prometheus.Counter
	Misses      prometheus.Counter
	Invalidated prometheus.Counter
	Entries     prometheus.Gauge
}

// NewMetrics creates the cache metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Result cache lookups that found an entry",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Result cache lookups that found nothing",
		}),
		Invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidated_total",
			Help:      "Entries removed by prefix invalidation",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently held by the result cache",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Invalidated, m.Entries)
	}
	return m
}
