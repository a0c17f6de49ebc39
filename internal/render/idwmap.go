package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/spatial"
)

// gridXYZ adapts a spatial.Grid to plotter.GridXYZ in longitude/latitude.
type gridXYZ struct {
	g *spatial.Grid
}

func (g gridXYZ) Dims() (c, r int)   { return len(g.g.Xs), len(g.g.Ys) }
func (g gridXYZ) Z(c, r int) float64 { return g.g.Z[r][c] }
func (g gridXYZ) X(c int) float64    { return g.g.Lon[c] }
func (g gridXYZ) Y(r int) float64    { return g.g.Lat[r] }

// IDWMap draws an interpolated surface masked to the boundary, with the
// boundary outline and the stations on top.
func IDWMap(w io.Writer, grid *spatial.Grid, boundary *spatial.Boundary, results []domain.TrendResult, opts MapOptions) error {
	if c, r := (gridXYZ{grid}).Dims(); c < 2 || r < 2 {
		return fmt.Errorf("grid of %dx%d cells is too small to draw", c, r)
	}
	if _, _, ok := grid.Range(); !ok {
		return errors.New("grid has no finite cell")
	}
	// The scale covers every sample of the surface; only stations inside the
	// boundary are drawn.
	stations := mappable(results, boundary)
	vmax := opts.VMax
	if vmax <= 0 {
		vmax = SymmetricMax(mappable(results, nil))
	}
	cm := divergingMap(vmax)

	p := plot.New()
	p.Title.Text = opts.title()
	p.X.Label.Text = "Longitude (°E)"
	p.Y.Label.Text = "Latitude (°N)"

	pal := cm.Palette(255)
	hm := plotter.NewHeatMap(gridXYZ{grid}, pal)
	hm.Min, hm.Max = cm.Min(), cm.Max()
	hm.NaN = color.Transparent
	colors := pal.Colors()
	hm.Underflow, hm.Overflow = colors[0], colors[len(colors)-1]
	p.Add(hm)

	if boundary != nil {
		outline, err := boundaryPolygons(boundary, nil)
		if err != nil {
			return fmt.Errorf("boundary: %w", err)
		}
		p.Add(outline...)
	}

	if len(stations) > 0 {
		xys := make(plotter.XYs, len(stations))
		names := make([]string, len(stations))
		for i, r := range stations {
			xys[i] = plotter.XY{X: r.Geo.Lon, Y: r.Geo.Lat}
			names[i] = r.StationName
		}
		dots, err := plotter.NewScatter(xys)
		if err != nil {
			return err
		}
		dots.GlyphStyle = draw.GlyphStyle{Color: color.Black, Radius: vg.Points(2.5), Shape: draw.CircleGlyph{}}
		p.Add(dots)

		labels, err := stationLabels(xys, names)
		if err != nil {
			return err
		}
		p.Add(labels)
	}

	e := extent{grid.Lon[0], grid.Lon[len(grid.Lon)-1], grid.Lat[0], grid.Lat[len(grid.Lat)-1]}
	e.pad(0.1).apply(p)

	bar := colorBarPlot(&plotter.ColorBar{ColorMap: cm, Vertical: true}, "Sen's slope (mm/year)")
	return writeWithColorBar(w, p, bar)
}
