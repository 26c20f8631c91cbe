package routers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/adapter/upstream"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
)

// ORS queries the OpenRouteService directions API.
type ORS struct {
	baseURL string
	http    *upstream.Client
}

// NewORS creates an OpenRouteService provider authenticated with key.
func NewORS(key, baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *ORS {
	h := upstream.New("ors", timeout, metrics, logger)
	h.SetHeader("Authorization", key)
	return &ORS{baseURL: strings.TrimRight(baseURL, "/"), http: h}
}

func (o *ORS) Name() string { return "ors" }

type orsAlternatives struct {
	ShareFactor float64 `json:"share_factor"`
	TargetCount int     `json:"target_count"`
}

type orsRequest struct {
	Coordinates  [][2]float64     `json:"coordinates"`
	Instructions bool             `json:"instructions"`
	Alternatives *orsAlternatives `json:"alternative_routes,omitempty"`
}

func (o *ORS) Routes(ctx context.Context, origin, dest domain.Point, alternatives bool) ([]domain.Route, error) {
	body := orsRequest{
		Coordinates: [][2]float64{{origin.Lon, origin.Lat}, {dest.Lon, dest.Lat}},
	}
	if alternatives {
		body.Alternatives = &orsAlternatives{ShareFactor: 0.6, TargetCount: 2}
	}

	var resp orsResponse
	if err := o.http.PostJSON(ctx, o.baseURL+"/v2/directions/driving-car/geojson", body, &resp); err != nil {
		return nil, err
	}

	now := domain.Now()
	routes := make([]domain.Route, 0, len(resp.Features))
	for i, f := range resp.Features {
		path := domain.ParsePath(f.Geometry, domain.OrderLonLat)
		if len(path) < 2 {
			continue
		}
		s := f.Properties.Summary
		routes = append(routes, domain.NewRoute(o.Name(), path, s.Distance, s.Duration, fmt.Sprintf("INT_ORS_%d", i+1), now))
	}
	if len(routes) == 0 {
		o.http.Observe("empty")
		return nil, fmt.Errorf("ors: %w", domain.ErrNoRoute)
	}
	return routes, nil
}

type orsResponse struct {
	Features []struct {
		Geometry   any `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}
