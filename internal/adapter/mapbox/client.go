package mapbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/couchcryptid/margdarshak/internal/adapter/upstream"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token   string
	baseURL string
	http    *upstream.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    upstream.New("mapbox", timeout, metrics, logger),
		metrics: metrics,
		logger:  logger,
	}
}

// ForwardGeocode converts an address or place name to coordinates.
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}
	return c.doRequest(ctx, u, params, "forward")
}

// ReverseGeocode converts coordinates to place details.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}
	return c.doRequest(ctx, u, params, "reverse")
}

// CityBBox returns the bounding box Mapbox reports for a city.
func (c *Client) CityBBox(ctx context.Context, city string) (domain.BBox, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(city))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"place,region"},
	}
	res, err := c.doRequest(ctx, u, params, "bbox")
	if err != nil {
		return domain.BBox{}, err
	}
	if res.BBox == nil {
		return domain.BBox{}, fmt.Errorf("mapbox bbox for %q: %w", city, domain.ErrNotFound)
	}
	return *res.BBox, nil
}

func (c *Client) doRequest(ctx context.Context, u string, params url.Values, method string) (domain.GeocodingResult, error) {
	var mapboxResp response
	if err := c.http.GetJSON(ctx, u, params, &mapboxResp); err != nil {
		c.countRequest("error")
		return domain.GeocodingResult{}, fmt.Errorf("%s geocode: %w", method, err)
	}

	if len(mapboxResp.Features) == 0 {
		c.countRequest("empty")
		return domain.GeocodingResult{}, domain.ErrNotFound
	}
	c.countRequest("success")

	f := mapboxResp.Features[0]
	result := domain.GeocodingResult{
		DisplayName: f.PlaceName,
		PlaceName:   f.Text,
		Confidence:  f.Relevance,
	}
	if len(f.Center) == 2 {
		result.Lon = f.Center[0]
		result.Lat = f.Center[1]
	}
	if len(f.BBox) == 4 {
		result.BBox = &domain.BBox{West: f.BBox[0], South: f.BBox[1], East: f.BBox[2], North: f.BBox[3]}
	}
	return result, nil
}

func (c *Client) countRequest(outcome string) {
	if c.metrics != nil {
		c.metrics.GeocodeRequests.WithLabelValues("mapbox", outcome).Inc()
	}
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	BBox      []float64 `json:"bbox,omitempty"`
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
