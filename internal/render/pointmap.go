package render

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/spatial"
)

// ErrNothingToMap is returned when no result has coordinates inside the
// boundary and a finite slope.
var ErrNothingToMap = errors.New("no mappable stations")

// MapOptions controls a trend map.
type MapOptions struct {
	Title    string
	Subtitle string
	// VMax is the half-width of the colour scale. Zero derives it from the
	// results drawn, so maps that should be compared must share one value.
	VMax float64
}

func (o MapOptions) title() string {
	if o.Subtitle == "" {
		return o.Title
	}
	return o.Title + "\n" + o.Subtitle
}

// mappable keeps the results with coordinates and a finite slope. With a
// boundary, stations outside it are dropped as well.
func mappable(results []domain.TrendResult, boundary *spatial.Boundary) []domain.TrendResult {
	out := make([]domain.TrendResult, 0, len(results))
	for _, r := range results {
		if !r.Mappable() || math.IsNaN(r.SenSlope) || math.IsInf(r.SenSlope, 0) {
			continue
		}
		if boundary != nil && !boundary.Contains(orb.Point{r.Geo.Lon, r.Geo.Lat}) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// PointMap draws each station at its coordinates coloured by Sen's slope on a
// symmetric diverging scale, rings the significant ones and labels them all.
// The boundary, when given, is drawn underneath and stations outside it are
// left off.
func PointMap(w io.Writer, results []domain.TrendResult, boundary *spatial.Boundary, opts MapOptions) error {
	stations := mappable(results, boundary)
	if len(stations) == 0 {
		return ErrNothingToMap
	}
	vmax := opts.VMax
	if vmax <= 0 {
		vmax = SymmetricMax(stations)
	}
	cm := divergingMap(vmax)

	p := plot.New()
	p.Title.Text = opts.title()
	p.X.Label.Text = "Longitude (°E)"
	p.Y.Label.Text = "Latitude (°N)"
	p.Add(plotter.NewGrid())

	if boundary != nil {
		polys, err := boundaryPolygons(boundary, landFill)
		if err != nil {
			return fmt.Errorf("boundary: %w", err)
		}
		p.Add(polys...)
	}

	xys := make(plotter.XYs, len(stations))
	names := make([]string, len(stations))
	var sig plotter.XYs
	for i, r := range stations {
		xys[i] = plotter.XY{X: r.Geo.Lon, Y: r.Geo.Lat}
		names[i] = r.StationName
		if r.Significant {
			sig = append(sig, xys[i])
		}
	}

	markers, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	markers.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Color:  colorAt(cm, stations[i].SenSlope),
			Radius: vg.Points(6),
			Shape:  draw.CircleGlyph{},
		}
	}
	p.Add(markers)

	if len(sig) > 0 {
		rings, err := plotter.NewScatter(sig)
		if err != nil {
			return err
		}
		rings.GlyphStyle = draw.GlyphStyle{Color: ringColor, Radius: vg.Points(8.5), Shape: draw.RingGlyph{}}
		p.Add(rings)
		p.Legend.Add("significant (MK)", rings)
		p.Legend.Top = true
	}

	labels, err := stationLabels(xys, names)
	if err != nil {
		return err
	}
	p.Add(labels)

	mapExtent(boundary, xys).apply(p)

	bar := colorBarPlot(&plotter.ColorBar{ColorMap: cm, Vertical: true}, "Sen's slope (mm/year)")
	return writeWithColorBar(w, p, bar)
}

func stationLabels(xys plotter.XYs, names []string) (*plotter.Labels, error) {
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: names})
	if err != nil {
		return nil, err
	}
	labels.Offset = vg.Point{X: vg.Points(6), Y: vg.Points(4)}
	for i := range labels.TextStyle {
		labels.TextStyle[i].Font.Size = vg.Points(7)
		labels.TextStyle[i].Color = labelColor
	}
	return labels, nil
}
