package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := Open("redis://"+mr.Addr()+"/0", time.Hour, 24*time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func sampleCorridor() domain.Corridor {
	path := []domain.Point{{Lat: 19.076, Lon: 72.8777}, {Lat: 19.09, Lon: 72.875}}
	return domain.Corridor{
		RequestID: "req-1",
		Request:   domain.EmergencyRequest{VehicleID: "AMB-7", Priority: "high"},
		Route:     domain.Route{DistanceM: 1600, DurationS: 150, Path: path},
		Status:    domain.StatusActive,
		CreatedAt: 1772352000,
	}
}

func TestCorridor_RoundTripWithTTL(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCorridor(ctx, sampleCorridor()))
	assert.Equal(t, time.Hour, mr.TTL(corridorPrefix+"req-1"))

	got, err := s.GetCorridor(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "AMB-7", got.Request.VehicleID)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Len(t, got.Route.Path, 2)
}

func TestCorridor_ExpiresAfterTTL(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCorridor(ctx, sampleCorridor()))
	mr.FastForward(2 * time.Hour)

	_, err := s.GetCorridor(ctx, "req-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCorridor_Unknown(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.GetCorridor(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCorridor_CorruptValue(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, mr.Set(corridorPrefix+"bad", "{not json"))

	_, err := s.GetCorridor(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestRoads_CacheByCity(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	_, ok, err := s.GetRoads(ctx, "Mumbai")
	require.NoError(t, err)
	assert.False(t, ok)

	roads := []domain.Road{{ID: "merged_SV Road_0_part_0", Name: "SV Road", Coordinates: []domain.Point{{Lat: 19.05, Lon: 72.83}, {Lat: 19.06, Lon: 72.835}}, LengthM: 1200}}
	require.NoError(t, s.PutRoads(ctx, "Mumbai", roads))
	assert.Equal(t, 24*time.Hour, mr.TTL(roadsPrefix+"mumbai"))

	got, ok, err := s.GetRoads(ctx, " mumbai")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, roads, got)
}

func TestCheckReadiness(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, s.CheckReadiness(context.Background()))

	mr.Close()
	require.Error(t, s.CheckReadiness(context.Background()))
}

func TestOpen_BadURL(t *testing.T) {
	_, err := Open("not-a-url://", time.Hour, time.Hour)
	require.Error(t, err)
}
