package render

import (
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/couchcryptid/rainfall-trend-etl/internal/spatial"
)

const dpi = 150

const (
	mapWidth      = 8 * vg.Inch
	mapHeight     = 9 * vg.Inch
	colorBarWidth = 1.4 * vg.Inch
	chartWidth    = 10 * vg.Inch
	chartHeight   = 5 * vg.Inch
)

// writeWithColorBar draws main on the left and bar in a strip on the right of
// one PNG image.
func writeWithColorBar(w io.Writer, main, bar *plot.Plot) error {
	c := vgimg.NewWith(vgimg.UseWH(mapWidth, mapHeight), vgimg.UseDPI(dpi))
	dc := draw.New(c)
	main.Draw(draw.Crop(dc, 0, -colorBarWidth, 0, 0))
	bar.Draw(draw.Crop(dc, mapWidth-colorBarWidth, 0, vg.Inch, -vg.Inch))

	_, err := vgimg.PngCanvas{Canvas: c}.WriteTo(w)
	return err
}

func writePlot(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func colorBarPlot(bar *plotter.ColorBar, label string) *plot.Plot {
	p := plot.New()
	p.HideX()
	p.Y.Label.Text = label
	p.Y.Padding = 0
	p.Add(bar)
	return p
}

// boundaryPolygons renders each polygon of the boundary, holes included. A
// nil fill draws the outline only.
func boundaryPolygons(b *spatial.Boundary, fill color.Color) ([]plot.Plotter, error) {
	out := make([]plot.Plotter, 0, len(b.Geometry))
	for _, poly := range b.Geometry {
		rings := make([]plotter.XYer, len(poly))
		for i, ring := range poly {
			xys := make(plotter.XYs, len(ring))
			for j, pt := range ring {
				xys[j] = plotter.XY{X: pt.Lon(), Y: pt.Lat()}
			}
			rings[i] = xys
		}
		pg, err := plotter.NewPolygon(rings...)
		if err != nil {
			return nil, err
		}
		pg.Color = fill
		pg.LineStyle.Color = outlineColor
		pg.LineStyle.Width = vg.Points(0.8)
		out = append(out, pg)
	}
	return out, nil
}

// extent is a longitude/latitude window.
type extent struct {
	minLon, maxLon, minLat, maxLat float64
}

// defaultExtent frames Bangladesh.
var defaultExtent = extent{minLon: 87, maxLon: 93, minLat: 20, maxLat: 27}

func (e extent) pad(deg float64) extent {
	return extent{e.minLon - deg, e.maxLon + deg, e.minLat - deg, e.maxLat + deg}
}

func (e extent) apply(p *plot.Plot) {
	p.X.Min, p.X.Max = e.minLon, e.maxLon
	p.Y.Min, p.Y.Max = e.minLat, e.maxLat
}

// mapExtent frames the boundary when there is one, otherwise the given points.
func mapExtent(b *spatial.Boundary, pts plotter.XYs) extent {
	if b != nil {
		bb := b.Bound()
		return extent{bb.Min.Lon(), bb.Max.Lon(), bb.Min.Lat(), bb.Max.Lat()}.pad(0.3)
	}
	if len(pts) == 0 {
		return defaultExtent
	}
	e := extent{pts[0].X, pts[0].X, pts[0].Y, pts[0].Y}
	for _, p := range pts[1:] {
		e.minLon, e.maxLon = min(e.minLon, p.X), max(e.maxLon, p.X)
		e.minLat, e.maxLat = min(e.minLat, p.Y), max(e.maxLat, p.Y)
	}
	return e.pad(0.5)
}
