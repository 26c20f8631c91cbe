package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
	PlaceName   string  `json:"-"`
	Confidence  float64 `json:"-"` // 0.0–1.0 provider confidence score
	BBox        *BBox   `json:"-"`
}

// Geocoder resolves free-text places to coordinates.
type Geocoder interface {
	// ForwardGeocode converts an address or place name to coordinates.
	// It returns ErrNotFound when the provider has no match.
	ForwardGeocode(ctx context.Context, query string) (GeocodingResult, error)
}

// ReverseGeocoder converts coordinates to place details.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// CityBounds resolves the bounding box of a city.
type CityBounds interface {
	CityBBox(ctx context.Context, city string) (BBox, error)
}
