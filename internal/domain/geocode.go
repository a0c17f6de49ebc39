package domain

import (
	"context"
	"log/slog"
)

// LocateStation fills in coordinates for a station whose metadata row had
// none. Stations that already have coordinates are returned with
// GeoSource "metadata". If geocoder is nil or the lookup fails the station is
// returned without coordinates and is later left off the maps.
func LocateStation(ctx context.Context, st Station, country string, geocoder Geocoder, logger *slog.Logger) Station {
	if !st.Geo.IsZero() {
		st.GeoSource = GeoSourceMetadata
		return st
	}
	if geocoder == nil {
		st.GeoSource = GeoSourceMissing
		return st
	}

	result, err := geocoder.ForwardGeocode(ctx, st.DisplayName(), country)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"station", st.ID,
			"name", st.DisplayName(),
			"error", err,
		)
		st.GeoSource = GeoSourceFailed
		return st
	}
	if result.Lat == 0 && result.Lon == 0 {
		st.GeoSource = GeoSourceMissing
		return st
	}

	st.Geo = Geo{Lat: result.Lat, Lon: result.Lon}
	st.GeoSource = GeoSourceForward
	logger.Info("station located by geocoding",
		"station", st.ID,
		"place", result.FormattedAddress,
		"confidence", result.Confidence,
	)
	return st
}
