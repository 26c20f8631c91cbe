package routers

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/adapter/upstream"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
)

// GraphHopper queries the GraphHopper Directions API.
type GraphHopper struct {
	key     string
	baseURL string
	http    *upstream.Client
}

// NewGraphHopper creates a GraphHopper provider.
func NewGraphHopper(key, baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *GraphHopper {
	return &GraphHopper{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    upstream.New("graphhopper", timeout, metrics, logger),
	}
}

func (g *GraphHopper) Name() string { return "graphhopper" }

func (g *GraphHopper) Routes(ctx context.Context, origin, dest domain.Point, alternatives bool) ([]domain.Route, error) {
	params := url.Values{
		"point":          {latLon(origin), latLon(dest)},
		"vehicle":        {"car"},
		"points_encoded": {"false"},
		"locale":         {"en"},
		"key":            {g.key},
	}
	if alternatives {
		params.Set("algorithm", "alternative_route")
		params.Set("alternative_route.max_paths", "3")
	}

	var resp ghResponse
	if err := g.http.GetJSON(ctx, g.baseURL, params, &resp); err != nil {
		return nil, err
	}

	now := domain.Now()
	routes := make([]domain.Route, 0, len(resp.Paths))
	for _, p := range resp.Paths {
		path := domain.ParsePath(p.Points, domain.OrderLonLat)
		if len(path) < 2 {
			continue
		}
		// GraphHopper reports time in milliseconds.
		routes = append(routes, domain.NewRoute(g.Name(), path, p.Distance, p.Time/1000, "INT_GH", now))
	}
	if len(routes) == 0 {
		g.http.Observe("empty")
		return nil, fmt.Errorf("graphhopper: %w", domain.ErrNoRoute)
	}
	return routes, nil
}

type ghResponse struct {
	Paths []struct {
		Distance float64 `json:"distance"`
		Time     float64 `json:"time"`
		Points   any     `json:"points"`
	} `json:"paths"`
}

func latLon(p domain.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lon)
}
