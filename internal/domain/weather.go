package domain

import "context"

// Weather is the current condition for a city.
type Weather struct {
	TempC     float64 `json:"temp"`
	Condition string  `json:"condition"`
}

// DefaultWeather is reported when no provider answers.
var DefaultWeather = Weather{TempC: 25.0, Condition: "Clear"}

// AirQuality is a pollution snapshot at a point.
type AirQuality struct {
	Lat        float64            `json:"lat"`
	Lon        float64            `json:"lon"`
	AQI        int                `json:"aqi"`
	Category   string             `json:"category"`
	Components map[string]float64 `json:"components"`
	Source     string             `json:"source"`
}

var aqiCategories = []string{"Good", "Fair", "Moderate", "Poor", "Very Poor"}

// AQICategory names the 1-5 air quality index. Out of range values are "Unknown".
func AQICategory(aqi int) string {
	if aqi < 1 || aqi > len(aqiCategories) {
		return "Unknown"
	}
	return aqiCategories[aqi-1]
}

// WeatherProvider reports weather and air quality.
type WeatherProvider interface {
	Weather(ctx context.Context, city string) (Weather, error)
	AirQuality(ctx context.Context, p Point) (AirQuality, error)
}
