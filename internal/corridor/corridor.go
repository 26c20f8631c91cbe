// Package corridor manages emergency green-corridor requests: route
// selection with live traffic, signal ETA planning, and position updates.
package corridor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	maxCandidates    = 3
	syntheticPoints  = 14
	syntheticPrefix  = "INT_SF"
	scoreConcurrency = 4
)

// Router supplies candidate routes. routing.Service satisfies it.
type Router interface {
	Alternatives(ctx context.Context, origin, dest domain.Point, vehicleID string, limit int) ([]domain.Route, error)
}

// CreateResult is returned when a corridor is opened.
type CreateResult struct {
	RequestID string              `json:"request_id"`
	Route     domain.Route        `json:"route"`
	Plan      domain.CorridorPlan `json:"corridor_plan"`
}

// UpdateResult is returned after a position update.
type UpdateResult struct {
	RequestID  string              `json:"request_id"`
	Status     string              `json:"status"`
	Plan       domain.CorridorPlan `json:"corridor_plan"`
	RemainingM float64             `json:"remaining_m"`
}

// StatusResult is the control-room view of a corridor.
type StatusResult struct {
	RequestID     string                `json:"request_id"`
	Status        string                `json:"status"`
	Route         domain.Route          `json:"route"`
	Intersections []domain.Intersection `json:"intersections"`
	Alternatives  []domain.Alternative  `json:"alternatives"`
	RemainingM    float64               `json:"remaining_m"`
}

// Service opens and tracks corridors.
type Service struct {
	router    Router
	traffic   domain.TrafficProvider
	store     domain.CorridorStore
	publisher domain.CorridorPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	newID     func() string
}

// New creates a Service. publisher may be nil when events are not exported.
func New(router Router, traffic domain.TrafficProvider, store domain.CorridorStore, publisher domain.CorridorPublisher, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		router:    router,
		traffic:   traffic,
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		newID:     uuid.NewString,
	}
}

// Create validates the request, scores candidate routes against live
// traffic, picks the cheapest as primary, plans signal ETAs, and stores the
// corridor. Routing failures degrade to a synthetic straight route.
func (s *Service) Create(ctx context.Context, req domain.EmergencyRequest) (CreateResult, error) {
	if err := req.Validate(); err != nil {
		s.observe("create", err)
		return CreateResult{}, fmt.Errorf("create corridor: %w", err)
	}
	now := domain.Now()

	candidates, err := s.router.Alternatives(ctx, req.Origin(), req.Dest(), req.VehicleID, maxCandidates)
	if err != nil || len(candidates) == 0 {
		if ctx.Err() != nil {
			s.observe("create", ctx.Err())
			return CreateResult{}, ctx.Err()
		}
		s.logger.Warn("no candidate routes, using synthetic route", "vehicle_id", req.VehicleID, "error", err)
		candidates = []domain.Route{domain.SyntheticRoute(req.Origin(), req.Dest(), syntheticPoints, syntheticPrefix, now)}
	}

	ranked := domain.RankRoutes(s.scoreRoutes(ctx, candidates))
	primary := ranked[0]
	plan := domain.PlanCorridor(primary, now)
	plan.Alternatives = domain.VisibleAlternatives(ranked)

	c := domain.Corridor{
		RequestID:    s.newID(),
		Request:      req,
		Route:        primary,
		Routes:       ranked,
		CreatedAt:    epochSeconds(now),
		Status:       domain.StatusActive,
		LastPosition: domain.Position{Lat: req.OriginLat, Lon: req.OriginLon},
		Plan:         plan,
	}
	if err := s.store.SaveCorridor(ctx, c); err != nil {
		s.observe("create", err)
		return CreateResult{}, fmt.Errorf("create corridor: %w", err)
	}
	s.publish(ctx, domain.EventCorridorCreated, c, now)
	s.observe("create", nil)

	s.logger.Info("corridor created",
		"request_id", c.RequestID,
		"vehicle_id", req.VehicleID,
		"distance_m", primary.DistanceM,
		"duration_s", primary.DurationS,
		"severity", primary.Severity(),
	)
	return CreateResult{RequestID: c.RequestID, Route: primary, Plan: plan}, nil
}

// scoreRoutes samples live traffic along each candidate concurrently and
// stretches durations by the resulting severity.
func (s *Service) scoreRoutes(ctx context.Context, routes []domain.Route) []domain.Route {
	scored := make([]domain.Route, len(routes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)
	for i, r := range routes {
		g.Go(func() error {
			scored[i] = domain.ApplyTraffic(r, domain.ScoreRoute(gctx, r.Path, s.traffic))
			return nil
		})
	}
	_ = g.Wait()
	return scored
}

// UpdatePosition applies a GPS fix to an active corridor and returns the
// refreshed plan. Unknown request IDs return domain.ErrNotFound.
func (s *Service) UpdatePosition(ctx context.Context, u domain.GPSUpdate) (UpdateResult, error) {
	if strings.TrimSpace(u.RequestID) == "" {
		s.observe("update", domain.ErrInvalidInput)
		return UpdateResult{}, fmt.Errorf("update position: %w: request_id is required", domain.ErrInvalidInput)
	}
	if !domain.ValidCoord(u.Lat, u.Lon) {
		s.observe("update", domain.ErrInvalidCoordinates)
		return UpdateResult{}, fmt.Errorf("update position: %w", domain.ErrInvalidCoordinates)
	}

	c, err := s.store.GetCorridor(ctx, u.RequestID)
	if err != nil {
		s.observe("update", err)
		return UpdateResult{}, fmt.Errorf("update position: %w", err)
	}
	if u.VehicleID != "" && c.Request.VehicleID != "" && u.VehicleID != c.Request.VehicleID {
		s.logger.Warn("position update from unexpected vehicle",
			"request_id", u.RequestID, "expected", c.Request.VehicleID, "got", u.VehicleID)
	}

	now := domain.Now()
	wasActive := c.Status == domain.StatusActive
	c = domain.AdvanceCorridor(c, u, now)

	if err := s.store.SaveCorridor(ctx, c); err != nil {
		s.observe("update", err)
		return UpdateResult{}, fmt.Errorf("update position: %w", err)
	}

	event := domain.EventCorridorPosition
	if wasActive && c.Status == domain.StatusCompleted {
		event = domain.EventCorridorCompleted
		s.logger.Info("corridor completed", "request_id", c.RequestID)
	}
	s.publish(ctx, event, c, now)
	s.observe("update", nil)

	return UpdateResult{RequestID: c.RequestID, Status: c.Status, Plan: c.Plan, RemainingM: remaining(c)}, nil
}

// Status returns the stored corridor. Unknown IDs return domain.ErrNotFound.
func (s *Service) Status(ctx context.Context, requestID string) (StatusResult, error) {
	c, err := s.store.GetCorridor(ctx, requestID)
	if err != nil {
		s.observe("status", err)
		return StatusResult{}, fmt.Errorf("corridor status: %w", err)
	}
	s.observe("status", nil)
	return StatusResult{
		RequestID:     c.RequestID,
		Status:        c.Status,
		Route:         c.Route,
		Intersections: c.Plan.Intersections,
		Alternatives:  c.Plan.Alternatives,
		RemainingM:    remaining(c),
	}, nil
}

// remaining is the along-route distance from the last reported position to the
// destination, or zero once the corridor is completed.
func remaining(c domain.Corridor) float64 {
	if c.Status == domain.StatusCompleted {
		return 0
	}
	return domain.RemainingDistance(c.Route.Path, domain.Point{Lat: c.LastPosition.Lat, Lon: c.LastPosition.Lon})
}

// publish emits a lifecycle event. Failures are logged and never fail the request.
func (s *Service) publish(ctx context.Context, eventType string, c domain.Corridor, now time.Time) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishCorridor(ctx, domain.CorridorEvent{
		Type:       eventType,
		RequestID:  c.RequestID,
		VehicleID:  c.Request.VehicleID,
		Status:     c.Status,
		Corridor:   c,
		OccurredAt: now,
	})
	if err != nil {
		s.logger.Warn("publish corridor event failed", "event_type", eventType, "request_id", c.RequestID, "error", err)
	}
}

func (s *Service) observe(action string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, domain.ErrInvalidCoordinates), errors.Is(err, domain.ErrInvalidInput):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	s.metrics.CorridorRequests.WithLabelValues(action, outcome).Inc()
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
