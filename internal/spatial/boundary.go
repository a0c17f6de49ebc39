// Package spatial reads boundary geometry and interpolates station values onto
// a regular Web Mercator grid.
package spatial

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// Boundary is a national or district outline in WGS-84 longitude/latitude,
// with its Web Mercator projection precomputed for masking.
type Boundary struct {
	Path      string
	Geometry  orb.MultiPolygon
	projected orb.MultiPolygon
}

// NewBoundary validates a multipolygon and prepares its projection.
func NewBoundary(path string, mp orb.MultiPolygon) (*Boundary, error) {
	if err := validate(mp); err != nil {
		return nil, &domain.GeometryError{Path: path, Err: err}
	}
	return &Boundary{
		Path:      path,
		Geometry:  mp,
		projected: project.MultiPolygon(mp.Clone(), project.WGS84.ToMercator),
	}, nil
}

// LoadBoundary reads a GeoJSON (.geojson, .json) or ESRI shapefile (.shp)
// boundary. Any failure is reported as a GeometryError.
func LoadBoundary(path string) (*Boundary, error) {
	var (
		mp  orb.MultiPolygon
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		mp, err = ReadShapefile(path)
	case ".geojson", ".json":
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			mp, err = ParseGeoJSON(data)
		}
	default:
		err = fmt.Errorf("unsupported boundary format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, &domain.GeometryError{Path: path, Err: err}
	}
	return NewBoundary(path, mp)
}

// ParseGeoJSON extracts every Polygon and MultiPolygon from a
// FeatureCollection, a single Feature or a bare geometry.
func ParseGeoJSON(data []byte) (orb.MultiPolygon, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	var geoms []orb.Geometry
	switch header.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parse feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parse feature: %w", err)
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parse geometry: %w", err)
		}
		geoms = append(geoms, g.Geometry())
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		mp = appendPolygons(mp, g)
	}
	if len(mp) == 0 {
		return nil, errors.New("no polygon geometry")
	}
	return mp, nil
}

func appendPolygons(mp orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	switch g := g.(type) {
	case orb.Polygon:
		return append(mp, g)
	case orb.MultiPolygon:
		return append(mp, g...)
	case orb.Collection:
		for _, c := range g {
			mp = appendPolygons(mp, c)
		}
	}
	return mp
}

// ReadShapefile reads the polygon records of a shapefile. Clockwise rings
// start a new polygon and counter-clockwise rings are holes of the polygon
// before them, following the ESRI convention.
func ReadShapefile(path string) (orb.MultiPolygon, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()

	var mp orb.MultiPolygon
	for r.Next() {
		_, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		for i := range poly.Parts {
			start := int(poly.Parts[i])
			end := len(poly.Points)
			if i+1 < len(poly.Parts) {
				end = int(poly.Parts[i+1])
			}
			if start < 0 || end > len(poly.Points) || start >= end {
				return nil, fmt.Errorf("corrupt polygon part %d", i)
			}
			ring := make(orb.Ring, 0, end-start)
			for _, p := range poly.Points[start:end] {
				ring = append(ring, orb.Point{p.X, p.Y})
			}
			if ring.Orientation() == orb.CCW && len(mp) > 0 {
				mp[len(mp)-1] = append(mp[len(mp)-1], ring)
				continue
			}
			mp = append(mp, orb.Polygon{ring})
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}
	if len(mp) == 0 {
		return nil, errors.New("no polygon records")
	}
	return mp, nil
}

func validate(mp orb.MultiPolygon) error {
	if len(mp) == 0 {
		return errors.New("empty boundary")
	}
	for i, poly := range mp {
		if len(poly) == 0 {
			return fmt.Errorf("polygon %d has no rings", i)
		}
		for j, ring := range poly {
			if len(ring) < 4 {
				return fmt.Errorf("polygon %d ring %d has %d points, need at least 4", i, j, len(ring))
			}
			if !ring.Closed() {
				return fmt.Errorf("polygon %d ring %d is not closed", i, j)
			}
		}
	}
	b := mp.Bound()
	if b.Min.Lon() < -180 || b.Max.Lon() > 180 || b.Min.Lat() < -90 || b.Max.Lat() > 90 {
		return fmt.Errorf("coordinates outside longitude/latitude range (%v); reproject to WGS-84", b)
	}
	return nil
}

// Bound returns the longitude/latitude extent.
func (b *Boundary) Bound() orb.Bound {
	return b.Geometry.Bound()
}

// Projected returns the Web Mercator outline.
func (b *Boundary) Projected() orb.MultiPolygon {
	return b.projected
}

// ContainsMercator reports whether a projected point lies inside the boundary.
func (b *Boundary) ContainsMercator(p orb.Point) bool {
	return planar.MultiPolygonContains(b.projected, p)
}

// Contains reports whether a longitude/latitude point lies inside the boundary.
func (b *Boundary) Contains(p orb.Point) bool {
	return planar.MultiPolygonContains(b.Geometry, p)
}
