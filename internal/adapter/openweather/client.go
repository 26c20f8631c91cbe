// Package openweather reports current weather and air pollution from OpenWeather.
package openweather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/adapter/upstream"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
)

const kelvinOffset = 273.15

// ErrNoKey is returned by AirQuality when no API key is configured.
var ErrNoKey = errors.New("openweather api key not configured")

// Client implements domain.WeatherProvider. Weather lookups degrade to
// domain.DefaultWeather; air quality lookups report their errors.
type Client struct {
	key     string
	baseURL string
	http    *upstream.Client
	logger  *slog.Logger
}

// NewClient creates an OpenWeather client for the 2.5 API rooted at baseURL.
func NewClient(key, baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    upstream.New("openweather", timeout, metrics, logger),
		logger:  logger,
	}
}

// Weather returns the current temperature in Celsius and the main condition.
func (c *Client) Weather(ctx context.Context, city string) (domain.Weather, error) {
	if c.key == "" {
		return domain.DefaultWeather, nil
	}
	var resp weatherResponse
	err := c.http.GetJSON(ctx, c.baseURL+"/weather", url.Values{"q": {city}, "appid": {c.key}}, &resp)
	if err == nil && len(resp.Weather) == 0 {
		err = errors.New("openweather: empty weather list")
	}
	if err != nil {
		if ctx.Err() != nil {
			return domain.Weather{}, ctx.Err()
		}
		c.logger.Debug("weather unavailable, using default", "city", city, "error", err)
		return domain.DefaultWeather, nil
	}
	return domain.Weather{TempC: resp.Main.Temp - kelvinOffset, Condition: resp.Weather[0].Main}, nil
}

// AirQuality returns the OpenWeather air quality index (1-5) and pollutant
// concentrations at p.
func (c *Client) AirQuality(ctx context.Context, p domain.Point) (domain.AirQuality, error) {
	if c.key == "" {
		return domain.AirQuality{}, ErrNoKey
	}
	params := url.Values{
		"lat":   {fmt.Sprintf("%f", p.Lat)},
		"lon":   {fmt.Sprintf("%f", p.Lon)},
		"appid": {c.key},
	}
	var resp airResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/air_pollution", params, &resp); err != nil {
		return domain.AirQuality{}, fmt.Errorf("air quality: %w", err)
	}
	if len(resp.List) == 0 {
		return domain.AirQuality{}, fmt.Errorf("air quality at %f,%f: %w", p.Lat, p.Lon, domain.ErrNotFound)
	}
	entry := resp.List[0]
	return domain.AirQuality{
		Lat:        p.Lat,
		Lon:        p.Lon,
		AQI:        entry.Main.AQI,
		Category:   domain.AQICategory(entry.Main.AQI),
		Components: entry.Components,
		Source:     "openweather",
	}, nil
}

type weatherResponse struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

type airResponse struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components map[string]float64 `json:"components"`
	} `json:"list"`
}
