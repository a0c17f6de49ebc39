package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// MinStations is the fewest stations an interpolated surface accepts.
const MinStations = 3

// coincident is the distance in metres under which a grid point takes a
// station's value unchanged.
const coincident = 1e-6

// maxCells bounds the grid size.
const maxCells = 4_000_000

// Sample is a station value at a Web Mercator position in metres.
type Sample struct {
	X, Y  float64
	Value float64
}

// IDWOptions configures inverse distance weighting.
type IDWOptions struct {
	Power      float64 // weight exponent p in 1/d^p
	Radius     float64 // search radius in metres, 0 for unlimited
	Resolution float64 // grid spacing in metres
}

// Grid is an interpolated surface on a regular Web Mercator grid. Z is indexed
// [row][col], with rows following Ys from south to north. Masked cells and
// cells without stations in range are NaN.
type Grid struct {
	Xs, Ys   []float64 // cell centres, metres
	Lon, Lat []float64 // the same centres in degrees
	Z        [][]float64
}

// Range returns the smallest and largest finite values. ok is false when the
// grid has no finite cell.
func (g *Grid) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range g.Z {
		for _, v := range row {
			if math.IsNaN(v) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
			ok = true
		}
	}
	return lo, hi, ok
}

// IDW estimates the value at (x, y). A sample closer than 1e-6 m returns its
// value exactly; a point with no sample within radius returns NaN.
func IDW(samples []Sample, x, y float64, opts IDWOptions) float64 {
	var num, den float64
	for i := range samples {
		d := math.Hypot(samples[i].X-x, samples[i].Y-y)
		if d < coincident {
			return samples[i].Value
		}
		if opts.Radius > 0 && d > opts.Radius {
			continue
		}
		w := 1 / math.Pow(d, opts.Power)
		num += w * samples[i].Value
		den += w
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// Interpolate builds a grid over bound (in metres) and fills every cell for
// which inside returns true. A nil inside fills every cell.
func Interpolate(samples []Sample, bound orb.Bound, inside func(orb.Point) bool, opts IDWOptions) (*Grid, error) {
	if len(samples) < MinStations {
		return nil, &domain.InsufficientStationsError{N: len(samples), Min: MinStations}
	}
	if opts.Resolution <= 0 || opts.Power <= 0 {
		return nil, errors.New("resolution and power must be positive")
	}

	nx := int(math.Ceil((bound.Max.X()-bound.Min.X())/opts.Resolution)) + 1
	ny := int(math.Ceil((bound.Max.Y()-bound.Min.Y())/opts.Resolution)) + 1
	if nx*ny > maxCells {
		return nil, fmt.Errorf("grid of %dx%d cells exceeds %d; raise the resolution", nx, ny, maxCells)
	}

	g := &Grid{
		Xs:  make([]float64, nx),
		Ys:  make([]float64, ny),
		Lon: make([]float64, nx),
		Lat: make([]float64, ny),
		Z:   make([][]float64, ny),
	}
	for c := 0; c < nx; c++ {
		g.Xs[c] = bound.Min.X() + float64(c)*opts.Resolution
		g.Lon[c] = project.Mercator.ToWGS84(orb.Point{g.Xs[c], 0}).Lon()
	}
	for r := 0; r < ny; r++ {
		g.Ys[r] = bound.Min.Y() + float64(r)*opts.Resolution
		g.Lat[r] = project.Mercator.ToWGS84(orb.Point{0, g.Ys[r]}).Lat()
	}

	for r := 0; r < ny; r++ {
		row := make([]float64, nx)
		for c := 0; c < nx; c++ {
			p := orb.Point{g.Xs[c], g.Ys[r]}
			if inside != nil && !inside(p) {
				row[c] = math.NaN()
				continue
			}
			row[c] = IDW(samples, p.X(), p.Y(), opts)
		}
		g.Z[r] = row
	}
	return g, nil
}

// Project converts a longitude/latitude position to Web Mercator metres.
func Project(geo domain.Geo) orb.Point {
	return project.WGS84.ToMercator(orb.Point{geo.Lon, geo.Lat})
}

// TrendSurface interpolates the Sen's slopes of mappable results over the
// boundary. Results without coordinates or with a non-finite slope do not
// count toward MinStations.
func TrendSurface(results []domain.TrendResult, boundary *Boundary, opts IDWOptions) (*Grid, error) {
	samples := make([]Sample, 0, len(results))
	for _, r := range results {
		if !r.Mappable() || math.IsNaN(r.SenSlope) || math.IsInf(r.SenSlope, 0) {
			continue
		}
		p := Project(r.Geo)
		samples = append(samples, Sample{X: p.X(), Y: p.Y(), Value: r.SenSlope})
	}
	return Interpolate(samples, boundary.Projected().Bound(), boundary.ContainsMercator, opts)
}
