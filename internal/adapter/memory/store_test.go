package memory

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func pointAt(minutes int, value float64) domain.TrafficPoint {
	return domain.NewTrafficPoint("Mumbai", "road_1", value, 30, base.Add(time.Duration(minutes)*time.Minute))
}

func TestHistory_OrderAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()

	// Out of order writes land chronologically.
	require.NoError(t, s.StorePoint(ctx, pointAt(60, 3)))
	require.NoError(t, s.StoreBatch(ctx, []domain.TrafficPoint{pointAt(0, 1), pointAt(30, 2), pointAt(90, 4)}))

	all, err := s.History(ctx, "mumbai", "mumbai::road_1", 30, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, all)

	recent, err := s.History(ctx, "mumbai", "mumbai::road_1", 30, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, recent)
}

func TestHistory_UpsertSameBucket(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.StorePoint(ctx, pointAt(0, 10)))
	require.NoError(t, s.StorePoint(ctx, pointAt(5, 20))) // same 30 minute bucket

	got, err := s.History(ctx, "mumbai", "mumbai::road_1", 30, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{20}, got)
	assert.Len(t, s.Points("mumbai", "mumbai::road_1"), 1)
}

func TestHistory_FiltersInterval(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.StorePoint(ctx, pointAt(0, 10)))
	require.NoError(t, s.StorePoint(ctx, domain.NewTrafficPoint("mumbai", "road_1", 99, 15, base.Add(time.Hour))))

	got, err := s.History(ctx, "mumbai", "mumbai::road_1", 30, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, got)
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetUser(ctx, "admin")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.CreateUser(ctx, domain.User{Username: "admin", PasswordHash: "h", Role: "admin"}))
	require.ErrorIs(t, s.CreateUser(ctx, domain.User{Username: "admin"}), domain.ErrConflict)

	u, err := s.GetUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Role)
}

func TestCorridors(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetCorridor(ctx, "x")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SaveCorridor(ctx, domain.Corridor{RequestID: "x", Status: domain.StatusActive}))
	c, err := s.GetCorridor(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, c.Status)
}

func TestRoads(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.GetRoads(ctx, "Pune")
	require.NoError(t, err)
	assert.False(t, ok)

	roads := []domain.Road{{ID: "r1", Name: "FC Road"}}
	require.NoError(t, s.PutRoads(ctx, "Pune", roads))
	roads[0].Name = "mutated"

	got, ok, err := s.GetRoads(ctx, "pune")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "FC Road", got[0].Name)
}
