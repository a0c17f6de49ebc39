package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// Locator fills in missing station coordinates with optional geocoding.
type Locator struct {
	geocoder domain.Geocoder
	country  string
	logger   *slog.Logger
}

// NewLocator creates a Locator. Pass a nil geocoder to disable geocoding;
// stations without coordinates then stay off the maps.
func NewLocator(geocoder domain.Geocoder, country string, logger *slog.Logger) *Locator {
	return &Locator{
		geocoder: geocoder,
		country:  country,
		logger:   logger,
	}
}

// Locate returns the stations with their coordinate source recorded.
func (l *Locator) Locate(ctx context.Context, stations []domain.Station) []domain.Station {
	out := make([]domain.Station, len(stations))
	for i, st := range stations {
		out[i] = domain.LocateStation(ctx, st, l.country, l.geocoder, l.logger)
	}
	return out
}
