package routers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	origin = domain.Point{Lat: 19.0760, Lon: 72.8777}
	dest   = domain.Point{Lat: 19.1136, Lon: 72.8697}
	// GeoJSON line from origin to dest through a midpoint, [lon, lat].
	lineCoords = [][2]float64{{72.8777, 19.0760}, {72.8740, 19.0950}, {72.8697, 19.1136}}
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func lineString() map[string]any {
	return map[string]any{"type": "LineString", "coordinates": lineCoords}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func TestGraphHopper_Routes(t *testing.T) {
	freezeClock(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, []string{"19.076000,72.877700", "19.113600,72.869700"}, q["point"])
		assert.Equal(t, "false", q.Get("points_encoded"))
		assert.Equal(t, "gh-key", q.Get("key"))
		assert.Empty(t, q.Get("algorithm"))
		writeJSON(t, w, map[string]any{"paths": []any{
			map[string]any{"distance": 4500.0, "time": 600000.0, "points": lineString()},
		}})
	}))
	defer srv.Close()

	gh := NewGraphHopper("gh-key", srv.URL, time.Second, observability.NewMetricsForTesting(), quietLogger())
	routes, err := gh.Routes(context.Background(), origin, dest, false)
	require.NoError(t, err)
	require.Len(t, routes, 1)

	r := routes[0]
	assert.Equal(t, "graphhopper", r.Provider)
	assert.InDelta(t, 4500.0, r.DistanceM, 1e-9)
	assert.InDelta(t, 600.0, r.DurationS, 1e-9)
	require.Len(t, r.Path, 3)
	assert.InDelta(t, 19.0760, r.Path[0].Lat, 1e-9)
	assert.InDelta(t, 72.8777, r.Path[0].Lon, 1e-9)
	assert.NotEmpty(t, r.Polyline)
	require.Len(t, r.Intersections, 3)
	assert.Equal(t, "INT_GH_1", r.Intersections[0].ID)
}

func TestGraphHopper_AlternativesParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alternative_route", r.URL.Query().Get("algorithm"))
		writeJSON(t, w, map[string]any{"paths": []any{
			map[string]any{"distance": 4500.0, "time": 600000.0, "points": lineString()},
			map[string]any{"distance": 5200.0, "time": 700000.0, "points": lineString()},
		}})
	}))
	defer srv.Close()

	gh := NewGraphHopper("k", srv.URL, time.Second, nil, quietLogger())
	routes, err := gh.Routes(context.Background(), origin, dest, true)
	require.NoError(t, err)
	assert.Len(t, routes, 2)
}

func TestGraphHopper_EmptyGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"paths": []any{
			map[string]any{"distance": 1.0, "time": 1.0, "points": map[string]any{"type": "LineString", "coordinates": []any{}}},
		}})
	}))
	defer srv.Close()

	gh := NewGraphHopper("k", srv.URL, time.Second, nil, quietLogger())
	_, err := gh.Routes(context.Background(), origin, dest, false)
	require.ErrorIs(t, err, domain.ErrNoRoute)
}

func TestOSRM_Routes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/route/v1/driving/72.877700,19.076000;72.869700,19.113600", r.URL.Path)
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		assert.Equal(t, "true", r.URL.Query().Get("alternatives"))
		writeJSON(t, w, map[string]any{"code": "Ok", "routes": []any{
			map[string]any{"distance": 4600.0, "duration": 580.0, "geometry": lineString()},
			map[string]any{"distance": 4900.0, "duration": 640.0, "geometry": lineString()},
		}})
	}))
	defer srv.Close()

	o := NewOSRM(srv.URL, time.Second, nil, quietLogger())
	routes, err := o.Routes(context.Background(), origin, dest, true)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "osrm", routes[0].Provider)
	assert.InDelta(t, 580.0, routes[0].DurationS, 1e-9)
	assert.Equal(t, "INT_OSRM_2_1", routes[1].Intersections[0].ID)
}

func TestOSRM_NotOk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"code": "NoRoute", "routes": []any{}})
	}))
	defer srv.Close()

	o := NewOSRM(srv.URL, time.Second, nil, quietLogger())
	_, err := o.Routes(context.Background(), origin, dest, false)
	require.ErrorIs(t, err, domain.ErrNoRoute)
}

func TestOSRM_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, map[string]any{"code": "Ok", "routes": []any{
			map[string]any{"distance": 4600.0, "duration": 580.0, "geometry": lineString()},
		}})
	}))
	defer srv.Close()

	o := NewOSRM(srv.URL, time.Second, nil, quietLogger())
	o.backoff = time.Millisecond
	routes, err := o.Routes(context.Background(), origin, dest, false)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOSRM_DoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	o := NewOSRM(srv.URL, time.Second, nil, quietLogger())
	o.backoff = time.Millisecond
	_, err := o.Routes(context.Background(), origin, dest, false)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestORS_Routes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/directions/driving-car/geojson", r.URL.Path)
		assert.Equal(t, "ors-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "alternative_routes")
		coords := body["coordinates"].([]any)
		assert.InDelta(t, 72.8777, coords[0].([]any)[0].(float64), 1e-9)

		writeJSON(t, w, map[string]any{"type": "FeatureCollection", "features": []any{
			map[string]any{
				"type":       "Feature",
				"geometry":   lineString(),
				"properties": map[string]any{"summary": map[string]any{"distance": 4700.0, "duration": 610.0}},
			},
		}})
	}))
	defer srv.Close()

	o := NewORS("ors-key", srv.URL, time.Second, nil, quietLogger())
	routes, err := o.Routes(context.Background(), origin, dest, true)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "ors", routes[0].Provider)
	assert.InDelta(t, 4700.0, routes[0].DistanceM, 1e-9)
	assert.Equal(t, "INT_ORS_1_1", routes[0].Intersections[0].ID)
}

func TestORS_NoAlternativesField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "alternative_routes")
		writeJSON(t, w, map[string]any{"features": []any{}})
	}))
	defer srv.Close()

	o := NewORS("k", srv.URL, time.Second, nil, quietLogger())
	_, err := o.Routes(context.Background(), origin, dest, false)
	require.ErrorIs(t, err, domain.ErrNoRoute)
}
