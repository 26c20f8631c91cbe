// Package nominatim geocodes places and city bounds with OpenStreetMap Nominatim.
package nominatim

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/adapter/upstream"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	bboxCacheSize = 256
	bboxCacheTTL  = 24 * time.Hour
)

// Client implements domain.Geocoder and domain.CityBounds.
// Requests are throttled to the public instance's usage policy.
type Client struct {
	baseURL string
	http    *upstream.Client
	limiter *rate.Limiter
	bboxes  *expirable.LRU[string, domain.BBox]
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Nominatim client limited to rps requests per second.
func NewClient(baseURL, userAgent string, rps float64, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	h := upstream.New("nominatim", timeout, metrics, logger)
	h.SetHeader("User-Agent", userAgent)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    h,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		bboxes:  expirable.NewLRU[string, domain.BBox](bboxCacheSize, nil, bboxCacheTTL),
		metrics: metrics,
		logger:  logger,
	}
}

// ForwardGeocode resolves a free-text address to its best match.
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	place, err := c.search(ctx, query)
	if err != nil {
		return domain.GeocodingResult{}, err
	}
	return place.result()
}

// CityBBox returns the bounding box of a city, cached for a day.
func (c *Client) CityBBox(ctx context.Context, city string) (domain.BBox, error) {
	key := strings.ToLower(strings.TrimSpace(city))
	if b, ok := c.bboxes.Get(key); ok {
		c.countCache("hit")
		return b, nil
	}
	c.countCache("miss")

	place, err := c.search(ctx, city)
	if err != nil {
		return domain.BBox{}, err
	}
	res, err := place.result()
	if err != nil {
		return domain.BBox{}, err
	}
	if res.BBox == nil {
		return domain.BBox{}, fmt.Errorf("nominatim bbox for %q: %w", city, domain.ErrNotFound)
	}
	c.bboxes.Add(key, *res.BBox)
	return *res.BBox, nil
}

func (c *Client) search(ctx context.Context, query string) (place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return place{}, fmt.Errorf("nominatim rate limit: %w", err)
	}
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	var places []place
	if err := c.http.GetJSON(ctx, c.baseURL+"/search", params, &places); err != nil {
		c.countRequest("error")
		return place{}, fmt.Errorf("nominatim search: %w", err)
	}
	if len(places) == 0 {
		c.countRequest("empty")
		return place{}, domain.ErrNotFound
	}
	c.countRequest("success")
	return places[0], nil
}

func (c *Client) countRequest(outcome string) {
	if c.metrics != nil {
		c.metrics.GeocodeRequests.WithLabelValues("nominatim", outcome).Inc()
	}
}

func (c *Client) countCache(outcome string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues("nominatim_bbox", outcome).Inc()
	}
}

// Nominatim returns coordinates and bounds as strings.
type place struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	Name        string   `json:"name"`
	Importance  float64  `json:"importance"`
	BoundingBox []string `json:"boundingbox"` // [south, north, west, east]
}

func (p place) result() (domain.GeocodingResult, error) {
	lat, errLat := strconv.ParseFloat(p.Lat, 64)
	lon, errLon := strconv.ParseFloat(p.Lon, 64)
	if errLat != nil || errLon != nil || !domain.ValidCoord(lat, lon) {
		return domain.GeocodingResult{}, fmt.Errorf("nominatim coordinates %q,%q: %w", p.Lat, p.Lon, domain.ErrNotFound)
	}
	res := domain.GeocodingResult{
		Lat:         lat,
		Lon:         lon,
		DisplayName: p.DisplayName,
		PlaceName:   p.Name,
		Confidence:  p.Importance,
	}
	if b, ok := parseBBox(p.BoundingBox); ok {
		res.BBox = &b
	}
	return res, nil
}

func parseBBox(raw []string) (domain.BBox, bool) {
	if len(raw) != 4 {
		return domain.BBox{}, false
	}
	var v [4]float64
	for i, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.BBox{}, false
		}
		v[i] = f
	}
	return domain.BBox{South: v[0], North: v[1], West: v[2], East: v[3]}, true
}
