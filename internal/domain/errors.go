package domain

import (
	"errors"
	"fmt"
)

// Error kinds as they appear in exclusion tables and metric labels.
const (
	KindData                 = "data"
	KindInsufficientData     = "insufficient_data"
	KindInsufficientStations = "insufficient_stations"
	KindGeometry             = "geometry"
	KindOther                = "other"
)

// ErrNoRuns is returned by run stores that hold no run yet.
var ErrNoRuns = errors.New("no runs recorded")

// DataError reports malformed or missing input for a station.
type DataError struct {
	Station string
	File    string
	Line    int // 0 when the error is not tied to a row
	Err     error
}

func (e *DataError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	switch {
	case e.Station != "" && loc != "":
		return fmt.Sprintf("data error: station %s (%s): %v", e.Station, loc, e.Err)
	case e.Station != "":
		return fmt.Sprintf("data error: station %s: %v", e.Station, e.Err)
	case loc != "":
		return fmt.Sprintf("data error: %s: %v", loc, e.Err)
	default:
		return fmt.Sprintf("data error: %v", e.Err)
	}
}

func (e *DataError) Unwrap() error { return e.Err }

// InsufficientDataError reports a series too short for a valid trend test.
type InsufficientDataError struct {
	N   int
	Min int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d periods, need at least %d", e.N, e.Min)
}

// InsufficientStationsError reports too few valid stations for spatial interpolation.
type InsufficientStationsError struct {
	N   int
	Min int
}

func (e *InsufficientStationsError) Error() string {
	return fmt.Sprintf("insufficient stations: %d valid, need at least %d", e.N, e.Min)
}

// GeometryError reports an unreadable or invalid boundary file.
type GeometryError struct {
	Path string
	Err  error
}

func (e *GeometryError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("geometry error: %v", e.Err)
	}
	return fmt.Sprintf("geometry error: %s: %v", e.Path, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

// ErrorKind maps an error to one of the Kind* labels.
func ErrorKind(err error) string {
	var (
		dataErr     *DataError
		shortErr    *InsufficientDataError
		stationsErr *InsufficientStationsError
		geomErr     *GeometryError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &shortErr):
		return KindInsufficientData
	case errors.As(err, &stationsErr):
		return KindInsufficientStations
	case errors.As(err, &geomErr):
		return KindGeometry
	case errors.As(err, &dataErr):
		return KindData
	default:
		return KindOther
	}
}
