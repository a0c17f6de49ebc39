package domain

import (
	"strings"
	"time"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether no coordinates are known. (0, 0) lies in the Gulf of
// Guinea, so it never names a real station in this network.
func (g Geo) IsZero() bool {
	return g.Lat == 0 && g.Lon == 0
}

// Geo sources recorded on a station.
const (
	GeoSourceMetadata = "metadata"
	GeoSourceForward  = "forward"
	GeoSourceFailed   = "failed"
	GeoSourceMissing  = "missing"
)

// Observation is one daily rainfall record.
type Observation struct {
	Date    time.Time `json:"date"`
	Amount  float64   `json:"amount_mm"`
	Missing bool      `json:"missing,omitempty"`
}

// StationMeta is one row of the station metadata table.
type StationMeta struct {
	ID   string
	Name string
	Geo  Geo
}

// Station is a meteorological station with its ordered daily observations.
// It is built once by the loader and treated as read-only afterwards.
type Station struct {
	ID           string
	Name         string
	Geo          Geo
	GeoSource    string
	Observations []Observation // sorted by date, one per day at most
}

// DisplayName returns the station name, falling back to its ID.
func (s Station) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Span returns the first and last observation dates. Both are zero for a
// station with no observations.
func (s Station) Span() (first, last time.Time) {
	if len(s.Observations) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Observations[0].Date, s.Observations[len(s.Observations)-1].Date
}

// StationKey normalizes a station identifier for matching across files.
func StationKey(id string) string {
	return strings.ToLower(strings.Join(strings.Fields(id), " "))
}
