// Package routing picks driving routes across external providers, falling
// back to road-snapped and straight-line paths when none answer.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRaceTimeout = 8 * time.Second
	defaultCity        = "Mumbai"

	snapSamples        = 36
	snapMaxDistanceM   = 400.0
	snapMinStepM       = 3.0
	snapDestToleranceM = 10.0
	snapMaxCandidates  = 5000
	snapRoadLimit      = 400
	snapRoadTarget     = 200
	straightPoints     = 20

	maxNudgeAttempts = 12
)

// Intersection ID prefixes per route origin.
const (
	PrefixPrimary  = "INT"
	PrefixSnapped  = "INT_SF"
	PrefixStraight = "INT_SL"
)

// RoadLookup returns prepared roads for a city. roads.Service satisfies it.
type RoadLookup interface {
	ForCity(ctx context.Context, city string, maxRoads, targetSegments int) ([]domain.Road, error)
}

// Request asks for one best route between two points.
type Request struct {
	VehicleID string  `json:"vehicle_id,omitempty"`
	OriginLat float64 `json:"origin_lat"`
	OriginLon float64 `json:"origin_lon"`
	DestLat   float64 `json:"dest_lat"`
	DestLon   float64 `json:"dest_lon"`
}

// Origin returns the request's start point.
func (r Request) Origin() domain.Point { return domain.Point{Lat: r.OriginLat, Lon: r.OriginLon} }

// Dest returns the request's end point.
func (r Request) Dest() domain.Point { return domain.Point{Lat: r.DestLat, Lon: r.DestLon} }

// Service races route providers and builds fallbacks.
type Service struct {
	providers   []domain.RouteProvider
	roads       RoadLookup
	logger      *slog.Logger
	metrics     *observability.Metrics
	timeout     time.Duration
	defaultCity string
}

// Option configures a Service.
type Option func(*Service)

// WithRaceTimeout bounds the whole provider race.
func WithRaceTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithDefaultCity sets the city whose roads are used for snapping.
func WithDefaultCity(city string) Option {
	return func(s *Service) {
		if city != "" {
			s.defaultCity = city
		}
	}
}

// New creates a Service. roads may be nil, which disables snapping.
func New(providers []domain.RouteProvider, roads RoadLookup, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		providers:   providers,
		roads:       roads,
		logger:      logger,
		metrics:     metrics,
		timeout:     defaultRaceTimeout,
		defaultCity: defaultCity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type raceResult struct {
	provider string
	routes   []domain.Route
	err      error
}

// Race queries every provider concurrently and returns the first usable route.
// Slower providers are cancelled once a winner is found.
func (s *Service) Race(ctx context.Context, origin, dest domain.Point) (domain.Route, error) {
	if len(s.providers) == 0 {
		return domain.Route{}, fmt.Errorf("race: %w: no providers configured", domain.ErrNoRoute)
	}

	raceCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make(chan raceResult, len(s.providers))
	for _, p := range s.providers {
		go func() {
			routes, err := p.Routes(raceCtx, origin, dest, false)
			results <- raceResult{provider: p.Name(), routes: routes, err: err}
		}()
	}

	var errs []error
	for range s.providers {
		select {
		case res := <-results:
			if res.err == nil && len(res.routes) > 0 && len(res.routes[0].Path) >= 2 {
				s.logger.Debug("route race won", "provider", res.provider)
				return res.routes[0], nil
			}
			if res.err == nil {
				res.err = domain.ErrNoRoute
			}
			errs = append(errs, fmt.Errorf("%s: %w", res.provider, res.err))
		case <-raceCtx.Done():
			errs = append(errs, raceCtx.Err())
			return domain.Route{}, fmt.Errorf("race: %w", errors.Join(errs...))
		}
	}
	return domain.Route{}, fmt.Errorf("race: %w", errors.Join(errs...))
}

// BestRoute returns the first provider route, relabelled with INT
// intersections. When every provider fails it snaps a straight-line sample
// to known road points, and if that is impossible returns the straight line.
func (s *Service) BestRoute(ctx context.Context, req Request) (domain.Route, error) {
	origin, dest := req.Origin(), req.Dest()
	if !origin.Valid() || !dest.Valid() {
		return domain.Route{}, fmt.Errorf("best route: %w", domain.ErrInvalidCoordinates)
	}

	now := domain.Now()
	won, err := s.Race(ctx, origin, dest)
	if err == nil {
		r := domain.NewRoute(won.Provider, won.Path, won.DistanceM, won.DurationS, PrefixPrimary, now)
		return r, nil
	}
	if ctx.Err() != nil {
		return domain.Route{}, ctx.Err()
	}
	s.logger.Warn("route providers failed, falling back to snapped path", "error", err, "vehicle_id", req.VehicleID)

	snapped, err := s.snapToRoads(ctx, origin, dest)
	if err == nil {
		s.metrics.RouteFallbacks.WithLabelValues("snapped").Inc()
		r := domain.RouteAlongPath("snapped", snapped, PrefixSnapped, now)
		return r, nil
	}
	s.logger.Warn("snapped path failed, using straight line", "error", err)

	s.metrics.RouteFallbacks.WithLabelValues("straight").Inc()
	path := domain.Interpolate(origin, dest, straightPoints)
	r := domain.RouteAlongPath("straight", path, PrefixStraight, now)
	return r, nil
}

// snapToRoads samples the straight line and moves each sample to the nearest
// road point within snapMaxDistanceM. Near-duplicate points are dropped and
// the destination is appended when the last point falls short of it.
func (s *Service) snapToRoads(ctx context.Context, origin, dest domain.Point) ([]domain.Point, error) {
	if s.roads == nil {
		return nil, errors.New("snap: no road source")
	}
	roads, err := s.roads.ForCity(ctx, s.defaultCity, snapRoadLimit, snapRoadTarget)
	if err != nil {
		return nil, fmt.Errorf("snap: %w", err)
	}

	var candidates []domain.Point
	for _, r := range roads {
		for _, p := range r.Coordinates {
			if len(candidates) >= snapMaxCandidates {
				break
			}
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("snap: no road points")
	}

	var snapped []domain.Point
	for _, sample := range domain.Interpolate(origin, dest, snapSamples) {
		p := sample
		if idx, dist := domain.NearestIndex(candidates, sample); idx >= 0 && dist <= snapMaxDistanceM {
			p = candidates[idx]
		}
		if len(snapped) == 0 || domain.Haversine(snapped[len(snapped)-1], p) > snapMinStepM {
			snapped = append(snapped, p)
		}
	}
	if len(snapped) == 0 || domain.Haversine(snapped[len(snapped)-1], dest) > snapDestToleranceM {
		snapped = append(snapped, dest)
	}
	return snapped, nil
}

// Alternatives collects up to limit distinct routes. Provider alternatives
// are gathered concurrently; when too few come back, BestRoute is used as the
// primary and nudged origin/destination variants fill the rest.
func (s *Service) Alternatives(ctx context.Context, origin, dest domain.Point, vehicleID string, limit int) ([]domain.Route, error) {
	if !origin.Valid() || !dest.Valid() {
		return nil, fmt.Errorf("alternatives: %w", domain.ErrInvalidCoordinates)
	}
	if limit <= 0 {
		limit = 3
	}

	routes := domain.DedupeRoutes(s.collectProviderRoutes(ctx, origin, dest), limit)

	if len(routes) == 0 {
		primary, err := s.BestRoute(ctx, Request{VehicleID: vehicleID, OriginLat: origin.Lat, OriginLon: origin.Lon, DestLat: dest.Lat, DestLon: dest.Lon})
		if err != nil {
			return nil, fmt.Errorf("alternatives: %w", err)
		}
		routes = append(routes, primary)
	}

	if len(routes) < limit {
		routes = s.addNudged(ctx, routes, origin, dest, vehicleID, limit)
	}

	return domain.DedupeRoutes(routes, limit), nil
}

// collectProviderRoutes asks every provider for alternatives in parallel and
// concatenates the results in provider order. Failures are logged and skipped.
func (s *Service) collectProviderRoutes(ctx context.Context, origin, dest domain.Point) []domain.Route {
	perProvider := make([][]domain.Route, len(s.providers))

	collectCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(collectCtx)
	for i, p := range s.providers {
		g.Go(func() error {
			routes, err := p.Routes(gctx, origin, dest, true)
			if err != nil {
				s.logger.Info("provider alternatives failed", "provider", p.Name(), "error", err)
				return nil
			}
			perProvider[i] = routes
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.Route
	for _, routes := range perProvider {
		for _, r := range routes {
			if len(r.Path) >= 2 {
				out = append(out, r)
			}
		}
	}
	return out
}

// nudge offsets in degrees, applied to the destination; origin jitters are
// tried in an outer loop.
var (
	nudgeMagnitudes = []float64{0.0006, 0.0009, 0.0018, 0.0025, -0.0009, -0.0018}
	originJitters   = []domain.Point{{}, {Lat: 0.0006}, {Lat: -0.0006}, {Lon: 0.0006}, {Lon: -0.0006}}
)

func nudgeOffsets() []domain.Point {
	out := make([]domain.Point, 0, len(nudgeMagnitudes)*4)
	for _, m := range nudgeMagnitudes {
		out = append(out,
			domain.Point{Lat: m},
			domain.Point{Lon: m},
			domain.Point{Lat: m, Lon: m},
			domain.Point{Lat: m, Lon: -m},
		)
	}
	return out
}

func (s *Service) addNudged(ctx context.Context, routes []domain.Route, origin, dest domain.Point, vehicleID string, limit int) []domain.Route {
	offsets := nudgeOffsets()
	attempts := 0
	for _, jitter := range originJitters {
		for _, off := range offsets {
			if len(routes) >= limit || attempts >= maxNudgeAttempts || ctx.Err() != nil {
				return routes
			}
			attempts++

			o := domain.Point{Lat: origin.Lat + jitter.Lat, Lon: origin.Lon + jitter.Lon}
			d := domain.Point{Lat: dest.Lat + off.Lat, Lon: dest.Lon + off.Lon}
			if !o.Valid() || !d.Valid() {
				continue
			}
			alt, err := s.BestRoute(ctx, Request{VehicleID: vehicleID, OriginLat: o.Lat, OriginLon: o.Lon, DestLat: d.Lat, DestLon: d.Lon})
			if err != nil {
				continue
			}
			if !isDuplicate(alt, routes) {
				routes = append(routes, alt)
			}
		}
	}
	return routes
}

func isDuplicate(r domain.Route, existing []domain.Route) bool {
	for _, u := range existing {
		if domain.SimilarRoutes(r, u, true) {
			return true
		}
	}
	return false
}
