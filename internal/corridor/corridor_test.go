package corridor_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/margdarshak/internal/adapter/memory"
	"github.com/couchcryptid/margdarshak/internal/corridor"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fixedNow = time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	origin   = domain.Point{Lat: 19.00, Lon: 72.80}
	dest     = domain.Point{Lat: 19.05, Lon: 72.80}
)

type fakeRouter struct {
	routes []domain.Route
	err    error
}

func (f fakeRouter) Alternatives(context.Context, domain.Point, domain.Point, string, int) ([]domain.Route, error) {
	return f.routes, f.err
}

// lonTraffic reports heavy congestion east of the origin's meridian and light traffic elsewhere.
type lonTraffic struct{}

func (lonTraffic) TrafficAt(_ context.Context, p domain.Point) (domain.TrafficReading, error) {
	if p.Lon > 72.8005 {
		return domain.TrafficReading{Severity: 90, JamFactor: 9}, nil
	}
	return domain.TrafficReading{Severity: 10, JamFactor: 1}, nil
}

type failingTraffic struct{}

func (failingTraffic) TrafficAt(context.Context, domain.Point) (domain.TrafficReading, error) {
	return domain.TrafficReading{}, errors.New("no data")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.CorridorEvent
	err    error
}

func (r *recordingPublisher) PublishCorridor(_ context.Context, e domain.CorridorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func routeVia(lon float64, duration float64) domain.Route {
	mid := domain.Point{Lat: 19.025, Lon: lon}
	path := append(domain.Interpolate(origin, mid, 6), domain.Interpolate(mid, dest, 6)[1:]...)
	return domain.NewRoute("osrm", path, domain.PathLength(path), duration, "INT_OSRM_1", fixedNow)
}

func request() domain.EmergencyRequest {
	return domain.EmergencyRequest{VehicleID: "AMB-7", OriginLat: origin.Lat, OriginLon: origin.Lon, DestLat: dest.Lat, DestLon: dest.Lon}
}

type fixture struct {
	svc       *corridor.Service
	store     *memory.Store
	publisher *recordingPublisher
	metrics   *observability.Metrics
	clock     *clockwork.FakeClock
}

func setup(t *testing.T, router corridor.Router, traffic domain.TrafficProvider) fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(fixedNow)
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	f := fixture{
		store:     memory.New(),
		publisher: &recordingPublisher{},
		metrics:   observability.NewMetricsForTesting(),
		clock:     clock,
	}
	f.svc = corridor.New(router, traffic, f.store, f.publisher, slog.Default(), f.metrics)
	return f
}

func TestCreate_PicksLeastCongestedRoute(t *testing.T) {
	congested := routeVia(72.81, 600)
	clear := routeVia(72.79, 650)
	f := setup(t, fakeRouter{routes: []domain.Route{congested, clear}}, lonTraffic{})

	res, err := f.svc.Create(context.Background(), request())
	require.NoError(t, err)

	_, err = uuid.Parse(res.RequestID)
	require.NoError(t, err)

	assert.InDelta(t, 72.79, res.Route.Path[5].Lon, 1e-9, "clear route should be primary")
	require.NotNil(t, res.Route.Traffic)
	assert.InDelta(t, 10, res.Route.Traffic.SeverityPct, 1e-9)
	assert.InDelta(t, 650*1.05, res.Route.DurationS, 1e-9)
	assert.InDelta(t, 650*1.05, res.Route.DurationAdjustedS, 1e-9)

	// light primary: one alternative
	require.Len(t, res.Plan.Alternatives, 1)
	assert.Equal(t, "alt_1", res.Plan.Alternatives[0].ID)

	// planned ETAs are stretched by the primary's multiplier
	require.Len(t, res.Plan.Intersections, 3)
	assert.InDelta(t, 650*0.25*1.05, res.Plan.Intersections[0].ETAS, 1e-9)

	stored, err := f.store.GetCorridor(context.Background(), res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
	assert.Equal(t, "high", stored.Request.Priority)
	assert.Len(t, stored.Routes, 2)
	assert.Equal(t, []string{domain.EventCorridorCreated}, f.publisher.types())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.CorridorRequests.WithLabelValues("create", "success")), 0)
}

func TestCreate_HeavyPrimaryShowsTwoAlternatives(t *testing.T) {
	routes := []domain.Route{routeVia(72.81, 300), routeVia(72.82, 900), routeVia(72.83, 1200)}
	f := setup(t, fakeRouter{routes: routes}, lonTraffic{})

	res, err := f.svc.Create(context.Background(), request())
	require.NoError(t, err)
	assert.Greater(t, res.Route.Severity(), 50.0)
	assert.Len(t, res.Plan.Alternatives, 2)
}

func TestCreate_RouterFailureUsesSyntheticRoute(t *testing.T) {
	f := setup(t, fakeRouter{err: errors.New("all providers down")}, failingTraffic{})

	res, err := f.svc.Create(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "INT_SF_1", res.Route.Intersections[0].ID)
	assert.Len(t, res.Route.Path, 14)
	require.NotNil(t, res.Route.Traffic)
	assert.InDelta(t, 10, res.Route.Traffic.SeverityPct, 0, "no readings falls back to light traffic")
	assert.Empty(t, res.Plan.Alternatives)
}

func TestCreate_InvalidRequest(t *testing.T) {
	f := setup(t, fakeRouter{}, lonTraffic{})

	req := request()
	req.OriginLat, req.OriginLon = 0, 0
	_, err := f.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidCoordinates)

	req = request()
	req.Priority = "low"
	_, err = f.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Empty(t, f.publisher.types())
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.CorridorRequests.WithLabelValues("create", "invalid")), 0)
}

func TestCreate_PublishFailureDoesNotFail(t *testing.T) {
	f := setup(t, fakeRouter{routes: []domain.Route{routeVia(72.79, 600)}}, lonTraffic{})
	f.publisher.err = errors.New("kafka down")

	_, err := f.svc.Create(context.Background(), request())
	require.NoError(t, err)
}

func TestUpdatePosition_AdvancesAndCompletes(t *testing.T) {
	f := setup(t, fakeRouter{routes: []domain.Route{routeVia(72.79, 600)}}, lonTraffic{})

	created, err := f.svc.Create(context.Background(), request())
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	mid := created.Route.Path[5]
	speed := 12.0
	res, err := f.svc.UpdatePosition(context.Background(), domain.GPSUpdate{
		VehicleID: "AMB-7", RequestID: created.RequestID, Lat: mid.Lat, Lon: mid.Lon, SpeedMPS: &speed,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, res.Status)
	require.Len(t, res.Plan.Intersections, 3)
	assert.True(t, res.Plan.Intersections[0].Passed)
	assert.False(t, res.Plan.Intersections[2].Passed)
	assert.Greater(t, res.Plan.Intersections[2].ETAS, 0.0)
	assert.InDelta(t, domain.RemainingDistance(created.Route.Path, mid), res.RemainingM, 1e-6)
	assert.Less(t, res.RemainingM, created.Route.DistanceM)

	stored, err := f.store.GetCorridor(context.Background(), created.RequestID)
	require.NoError(t, err)
	assert.InDelta(t, mid.Lat, stored.LastPosition.Lat, 1e-12)

	res, err = f.svc.UpdatePosition(context.Background(), domain.GPSUpdate{
		VehicleID: "AMB-7", RequestID: created.RequestID, Lat: dest.Lat, Lon: dest.Lon,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Zero(t, res.RemainingM)
	assert.Equal(t, []string{
		domain.EventCorridorCreated,
		domain.EventCorridorPosition,
		domain.EventCorridorCompleted,
	}, f.publisher.types())
}

func TestUpdatePosition_Errors(t *testing.T) {
	f := setup(t, fakeRouter{}, lonTraffic{})

	_, err := f.svc.UpdatePosition(context.Background(), domain.GPSUpdate{RequestID: "missing", Lat: 19, Lon: 72.8})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.UpdatePosition(context.Background(), domain.GPSUpdate{Lat: 19, Lon: 72.8})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.UpdatePosition(context.Background(), domain.GPSUpdate{RequestID: "x", Lat: 95, Lon: 72.8})
	require.ErrorIs(t, err, domain.ErrInvalidCoordinates)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.CorridorRequests.WithLabelValues("update", "not_found")), 0)
}

func TestStatus(t *testing.T) {
	f := setup(t, fakeRouter{routes: []domain.Route{routeVia(72.79, 600), routeVia(72.81, 700)}}, lonTraffic{})

	created, err := f.svc.Create(context.Background(), request())
	require.NoError(t, err)

	st, err := f.svc.Status(context.Background(), created.RequestID)
	require.NoError(t, err)
	assert.Equal(t, created.RequestID, st.RequestID)
	assert.Equal(t, domain.StatusActive, st.Status)
	assert.Equal(t, created.Plan.Intersections, st.Intersections)
	assert.Len(t, st.Alternatives, 1)
	assert.InDelta(t, domain.PathLength(st.Route.Path), st.RemainingM, 1)

	_, err = f.svc.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
