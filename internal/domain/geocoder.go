package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves station names to coordinates.
type Geocoder interface {
	// ForwardGeocode converts a place name within a country to coordinates.
	ForwardGeocode(ctx context.Context, name, country string) (GeocodingResult, error)
}
