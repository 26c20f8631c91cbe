// Package overpass fetches drivable road ways from the OpenStreetMap Overpass API.
package overpass

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

const highwayClasses = "motorway|trunk|primary|secondary|tertiary|residential|unclassified|service"

// Client implements domain.RoadSource.
type Client struct {
	baseURL string
	http    *upstream.Client
}

// NewClient creates an Overpass client. Overpass queries are slow; timeout
// should be generous.
func NewClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	h := upstream.New("overpass", timeout, metrics, logger)
	h.SetHeader("User-Agent", userAgent)
	return &Client{baseURL: baseURL, http: h}
}

// Query builds the Overpass QL request for highways inside b.
func Query(b domain.BBox) string {
	return fmt.Sprintf(`[out:json][timeout:30];
(
  way["highway"~"%s"](%f,%f,%f,%f);
);
out geom;`, highwayClasses, b.South, b.West, b.North, b.East)
}

// Ways returns every highway way inside b with at least two points. Ways are
// named by their name tag, then ref, then left unnamed.
func (c *Client) Ways(ctx context.Context, b domain.BBox) ([]domain.WayFragment, error) {
	var resp response
	if err := c.http.PostForm(ctx, c.baseURL, url.Values{"data": {Query(b)}}, &resp); err != nil {
		return nil, fmt.Errorf("overpass ways: %w", err)
	}

	out := make([]domain.WayFragment, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		if e.Type != "way" || len(e.Geometry) < 2 {
			continue
		}
		path := make([]domain.Point, 0, len(e.Geometry))
		for _, g := range e.Geometry {
			if domain.ValidCoord(g.Lat, g.Lon) {
				path = append(path, domain.Point{Lat: g.Lat, Lon: g.Lon})
			}
		}
		if len(path) < 2 {
			continue
		}
		name := e.Tags["name"]
		if name == "" {
			name = e.Tags["ref"]
		}
		out = append(out, domain.WayFragment{ID: fmt.Sprintf("way_%d", e.ID), Name: name, Path: path})
	}
	return out, nil
}

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geometry"`
}
