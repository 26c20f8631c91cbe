package traffic_test

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/couchcryptid/margdarshak/internal/adapter/memory"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/couchcryptid/margdarshak/internal/traffic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeocoder struct {
	res domain.GeocodingResult
	err error
}

func (f fakeGeocoder) ForwardGeocode(context.Context, string) (domain.GeocodingResult, error) {
	return f.res, f.err
}

type fakeWeather struct {
	w   domain.Weather
	err error
}

func (f fakeWeather) Weather(context.Context, string) (domain.Weather, error) { return f.w, f.err }

func (f fakeWeather) AirQuality(context.Context, domain.Point) (domain.AirQuality, error) {
	return domain.AirQuality{}, errors.New("not implemented")
}

type countingRoads struct {
	roads           []domain.Road
	gotMax, gotTarg int
}

func (c *countingRoads) ForCity(_ context.Context, _ string, maxRoads, target int) ([]domain.Road, error) {
	c.gotMax, c.gotTarg = maxRoads, target
	return c.roads, nil
}

func road(id string, lat float64) domain.Road {
	return domain.Road{
		ID:          id,
		Name:        id + " road",
		Coordinates: domain.Interpolate(domain.Point{Lat: lat, Lon: 72.80}, domain.Point{Lat: lat, Lon: 72.81}, 6),
	}
}

func newSimService(roads traffic.RoadLookup, opts ...traffic.Option) *traffic.Service {
	opts = append(opts, traffic.WithRandSource(func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }))
	provider := &fakeProvider{reading: domain.TrafficReading{SpeedKmh: 30, JamFactor: 2}}
	return traffic.New(provider, memory.New(), roads, slog.Default(), observability.NewMetricsForTesting(), opts...)
}

func TestSimulate_TakesRequestedRoads(t *testing.T) {
	roads := &countingRoads{roads: []domain.Road{road("a", 19.00), road("b", 19.02), road("c", 19.04)}}
	svc := newSimService(roads, traffic.WithWeather(fakeWeather{w: domain.Weather{TempC: 31, Condition: "Haze"}}))

	sim, err := svc.Simulate(context.Background(), "Mumbai", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 200, roads.gotMax)
	assert.Equal(t, 2, roads.gotTarg)

	segments := map[string]bool{}
	for _, row := range sim.Data {
		segments[row.Segment] = true
		assert.Equal(t, "Haze", row.Weather)
		assert.InDelta(t, 31, row.Temp, 0)
		assert.Less(t, row.Time, 4)
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, segments)
	assert.InDelta(t, 19.01, sim.CenterLat, 1e-6)
}

func TestSimulate_IsDeterministicForSeed(t *testing.T) {
	roads := &countingRoads{roads: []domain.Road{road("a", 19.00)}}
	svc := newSimService(roads)

	first, err := svc.Simulate(context.Background(), "Mumbai", 1, 3)
	require.NoError(t, err)
	second, err := svc.Simulate(context.Background(), "Mumbai", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSimulate_Defaults(t *testing.T) {
	roads := &countingRoads{}
	svc := newSimService(roads, traffic.WithGeocoder(fakeGeocoder{res: domain.GeocodingResult{Lat: 18.52, Lon: 73.85}}))

	sim, err := svc.Simulate(context.Background(), "Pune", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, traffic.DefaultSimSegments, roads.gotTarg)
	assert.Empty(t, sim.Data)
	assert.InDelta(t, 18.52, sim.CenterLat, 0)
	assert.InDelta(t, 73.85, sim.CenterLon, 0)
}

func TestSimulate_GeocodeFailureUsesDefaultCentre(t *testing.T) {
	svc := newSimService(&countingRoads{}, traffic.WithGeocoder(fakeGeocoder{err: domain.ErrNotFound}))

	sim, err := svc.Simulate(context.Background(), "Nowhere", 3, 3)
	require.NoError(t, err)
	assert.InDelta(t, domain.DefaultCenter.Lat, sim.CenterLat, 0)
	assert.InDelta(t, domain.DefaultCenter.Lon, sim.CenterLon, 0)
}

func TestSimulate_Errors(t *testing.T) {
	svc := newSimService(&countingRoads{})
	_, err := svc.Simulate(context.Background(), "  ", 3, 3)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	svc = newSimService(fakeRoads{err: errors.New("overpass down")})
	_, err = svc.Simulate(context.Background(), "Mumbai", 3, 3)
	assert.Error(t, err)
}
