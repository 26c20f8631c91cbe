package openweather

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(key, baseURL string) *Client {
	return NewClient(key, baseURL, time.Second, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "Mumbai", r.URL.Query().Get("q"))
		assert.Equal(t, "ow-key", r.URL.Query().Get("appid"))
		_, _ = w.Write([]byte(`{"main":{"temp":303.15},"weather":[{"main":"Haze"}]}`))
	}))
	defer srv.Close()

	w, err := testClient("ow-key", srv.URL).Weather(context.Background(), "Mumbai")
	require.NoError(t, err)
	assert.InDelta(t, 30.0, w.TempC, 1e-9)
	assert.Equal(t, "Haze", w.Condition)
}

func TestWeather_FallsBackToDefault(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"unknown city", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"empty weather list", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"main":{"temp":300},"weather":[]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			w, err := testClient("k", srv.URL).Weather(context.Background(), "Atlantis")
			require.NoError(t, err)
			assert.Equal(t, domain.DefaultWeather, w)
		})
	}
}

func TestWeather_NoKey(t *testing.T) {
	w, err := testClient("", "http://127.0.0.1:0").Weather(context.Background(), "Mumbai")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultWeather, w)
}

func TestAirQuality(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/air_pollution", r.URL.Path)
		assert.Equal(t, "19.076000", r.URL.Query().Get("lat"))
		_, _ = w.Write([]byte(`{"list":[{"main":{"aqi":4},"components":{"pm2_5":62.1,"no2":41.3}}]}`))
	}))
	defer srv.Close()

	aq, err := testClient("k", srv.URL).AirQuality(context.Background(), domain.Point{Lat: 19.076, Lon: 72.8777})
	require.NoError(t, err)
	assert.Equal(t, 4, aq.AQI)
	assert.Equal(t, "Poor", aq.Category)
	assert.InDelta(t, 62.1, aq.Components["pm2_5"], 1e-9)
	assert.Equal(t, "openweather", aq.Source)
}

func TestAirQuality_Errors(t *testing.T) {
	_, err := testClient("", "http://127.0.0.1:0").AirQuality(context.Background(), domain.Point{Lat: 19, Lon: 72})
	require.ErrorIs(t, err, ErrNoKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"list":[]}`))
	}))
	defer srv.Close()
	_, err = testClient("k", srv.URL).AirQuality(context.Background(), domain.Point{Lat: 19, Lon: 72})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
