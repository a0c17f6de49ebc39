package mockdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// Dataset file names inside the output directory.
const (
	MetadataFile = "station_metadata.csv"
	DailyDir     = "daily"
	BoundaryFile = "bangladesh.geojson"
)

// Dataset describes a dataset written to disk.
type Dataset struct {
	MetaPath     string
	DailyDir     string
	BoundaryPath string
	Stations     []Station
	Days         int // daily rows written across all stations
}

// outline is a coarse hand-traced Bangladesh border, lon/lat, closed. Every
// catalogue station lies inside it.
var outline = orb.Ring{
	{88.0, 24.3}, {88.6, 26.5}, {89.8, 26.3}, {92.5, 25.1}, {92.3, 24.0},
	{92.7, 22.0}, {92.4, 20.6}, {91.9, 21.4}, {90.0, 21.6}, {89.0, 21.6},
	{88.9, 22.5}, {88.5, 23.5}, {88.0, 24.3},
}

// Boundary returns the country outline as a polygon.
func Boundary() orb.Polygon {
	ring := make(orb.Ring, len(outline))
	copy(ring, outline)
	return orb.Polygon{ring}
}

// Write generates the full dataset under dir.
func (g *Generator) Write(dir string) (*Dataset, error) {
	ds := &Dataset{
		MetaPath:     filepath.Join(dir, MetadataFile),
		DailyDir:     filepath.Join(dir, DailyDir),
		BoundaryPath: filepath.Join(dir, BoundaryFile),
		Stations:     g.Stations(),
	}
	if err := os.MkdirAll(ds.DailyDir, 0o755); err != nil {
		return nil, fmt.Errorf("create daily directory: %w", err)
	}
	if err := WriteMetadata(ds.MetaPath, ds.Stations); err != nil {
		return nil, err
	}
	for _, st := range ds.Stations {
		obs := g.Daily(st, g.opts.StartYear, g.opts.EndYear)
		if err := WriteDaily(filepath.Join(ds.DailyDir, st.ID+".csv"), obs); err != nil {
			return nil, err
		}
		ds.Days += len(obs)
	}
	if err := WriteBoundary(ds.BoundaryPath); err != nil {
		return nil, err
	}
	return ds, nil
}

// WriteMetadata writes the station table. A station with zero coordinates is
// written with empty latitude and longitude cells.
func WriteMetadata(path string, stations []Station) error {
	rows := [][]string{{"Station", "Name", "Latitude", "Longitude"}}
	for _, st := range stations {
		lat, lon := "", ""
		if !st.Geo.IsZero() {
			lat = strconv.FormatFloat(st.Geo.Lat, 'f', 4, 64)
			lon = strconv.FormatFloat(st.Geo.Lon, 'f', 4, 64)
		}
		rows = append(rows, []string{st.ID, st.Name, lat, lon})
	}
	return writeCSV(path, rows)
}

// WriteDaily writes one station's observations as Date,Rainfall (mm) rows.
// Missing days are written as NA.
func WriteDaily(path string, obs []domain.Observation) error {
	rows := make([][]string, 0, len(obs)+1)
	rows = append(rows, []string{"Date", "Rainfall (mm)"})
	for _, o := range obs {
		amount := "NA"
		if !o.Missing {
			amount = strconv.FormatFloat(o.Amount, 'f', -1, 64)
		}
		rows = append(rows, []string{o.Date.Format("2006-01-02"), amount})
	}
	return writeCSV(path, rows)
}

// WriteBoundary writes the outline as a one-feature GeoJSON collection.
func WriteBoundary(path string) error {
	f := geojson.NewFeature(Boundary())
	f.Properties["name"] = "Bangladesh"
	fc := geojson.NewFeatureCollection()
	fc.Append(f)

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode boundary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write boundary: %w", err)
	}
	return nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}
