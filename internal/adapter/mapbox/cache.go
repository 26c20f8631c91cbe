package mapbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL bounds how long a geocode stays cached.
const DefaultCacheTTL = 24 * time.Hour

// CachedGeocoder wraps a Geocoder with an in-memory expiring LRU cache.
type CachedGeocoder struct {
	inner   domain.Geocoder
	name    string
	cache   *expirable.LRU[string, domain.GeocodingResult]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder. name labels
// the cache metrics; metrics may be nil.
func NewCachedGeocoder(inner domain.Geocoder, name string, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedGeocoder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedGeocoder{
		inner:   inner,
		name:    name,
		cache:   expirable.NewLRU[string, domain.GeocodingResult](maxEntries, nil, ttl),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	key := "fwd:" + strings.ToLower(strings.TrimSpace(query))
	if result, ok := c.lookup(key); ok {
		return result, nil
	}
	result, err := c.inner.ForwardGeocode(ctx, query)
	if err != nil {
		// Misses and errors are not cached so they can be retried.
		return result, err
	}
	c.cache.Add(key, result)
	return result, nil
}

// ReverseGeocode caches reverse lookups when the wrapped geocoder supports them.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	rev, ok := c.inner.(domain.ReverseGeocoder)
	if !ok {
		return domain.GeocodingResult{}, fmt.Errorf("%s reverse geocode: %w", c.name, domain.ErrNotFound)
	}
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lon)
	if result, ok := c.lookup(key); ok {
		return result, nil
	}
	result, err := rev.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	if result.DisplayName != "" {
		c.cache.Add(key, result)
	}
	return result, nil
}

// Len reports the number of cached entries.
func (c *CachedGeocoder) Len() int { return c.cache.Len() }

func (c *CachedGeocoder) lookup(key string) (domain.GeocodingResult, bool) {
	result, ok := c.cache.Get(key)
	if c.metrics != nil {
		outcome := "miss"
		if ok {
			outcome = "hit"
		}
		c.metrics.GeocodeCache.WithLabelValues(c.name, outcome).Inc()
	}
	return result, ok
}
