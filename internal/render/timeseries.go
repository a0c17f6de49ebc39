package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

var (
	seriesColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	olsColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	senColor     = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	rollingColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// AnnualChart plots a station's yearly totals with the least-squares and
// Sen's slope lines of its trend result and a Mann-Kendall caption.
func AnnualChart(w io.Writer, series domain.Series, res domain.TrendResult) error {
	if series.Len() == 0 {
		return errors.New("empty series")
	}
	times, values := series.Times(), series.Values()
	xys := make(plotter.XYs, len(times))
	for i := range times {
		xys[i] = plotter.XY{X: times[i], Y: values[i]}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: %s rainfall", res.StationName, series.Level)
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Rainfall (mm)"
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return err
	}
	line.Color = seriesColor
	points.Shape = draw.CircleGlyph{}
	points.Color = seriesColor
	points.Radius = vg.Points(2.5)
	p.Add(line, points)
	p.Legend.Add("observed", line, points)

	t0, t1 := times[0], times[len(times)-1]
	meanT := 0.0
	for _, t := range times {
		meanT += t
	}
	meanT /= float64(len(times))

	ols := plotter.NewFunction(func(x float64) float64 {
		return res.Mean + res.LinearSlope*(x-meanT)
	})
	ols.XMin, ols.XMax = t0, t1
	ols.Color = olsColor
	ols.Width = vg.Points(1.5)
	p.Add(ols)
	p.Legend.Add(fmt.Sprintf("linear %.2f mm/yr", res.LinearSlope), ols)

	sen := plotter.NewFunction(func(x float64) float64 {
		return res.SenIntercept + res.SenSlope*x
	})
	sen.XMin, sen.XMax = t0, t1
	sen.Color = senColor
	sen.Width = vg.Points(1.5)
	sen.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
	p.Add(sen)
	p.Legend.Add(fmt.Sprintf("Sen %.2f mm/yr", res.SenSlope), sen)
	p.Legend.Top = true
	p.Legend.Left = true

	caption := fmt.Sprintf("MK tau=%.3f  p=%.4f  %s", res.Tau, res.PValue, res.Trend())
	ymax := values[0]
	for _, v := range values {
		ymax = math.Max(ymax, v)
	}
	note, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: t1, Y: ymax}},
		Labels: []string{caption},
	})
	if err != nil {
		return err
	}
	note.TextStyle[0].XAlign = draw.XRight
	note.TextStyle[0].Font.Size = vg.Points(9)
	p.Add(note)

	return writePlot(w, p, chartWidth, chartHeight)
}

// MonthlyChart plots monthly totals with their rolling mean. Lines break
// across missing months and where the rolling mean is undefined.
func MonthlyChart(w io.Writer, series domain.Series, rolling []float64, stationName string) error {
	if series.Len() == 0 {
		return errors.New("empty series")
	}
	if len(rolling) != series.Len() {
		return fmt.Errorf("rolling mean has %d values for %d months", len(rolling), series.Len())
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: monthly rainfall", stationName)
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Rainfall (mm)"
	p.Add(plotter.NewGrid())

	totals := make([]float64, series.Len())
	for i, pt := range series.Points {
		totals[i] = pt.Total
	}

	for i, seg := range segments(series, totals) {
		l, err := plotter.NewLine(seg)
		if err != nil {
			return err
		}
		l.Color = seriesColor
		l.Width = vg.Points(0.7)
		p.Add(l)
		if i == 0 {
			p.Legend.Add("monthly total", l)
		}
	}
	for i, seg := range segments(series, rolling) {
		l, err := plotter.NewLine(seg)
		if err != nil {
			return err
		}
		l.Color = rollingColor
		l.Width = vg.Points(1.8)
		p.Add(l)
		if i == 0 {
			p.Legend.Add("12-month rolling mean", l)
		}
	}
	p.Legend.Top = true

	return writePlot(w, p, chartWidth, chartHeight)
}

// segments splits a monthly series into runs of consecutive months with
// finite values.
func segments(series domain.Series, values []float64) []plotter.XYs {
	var (
		out  []plotter.XYs
		cur  plotter.XYs
		prev = -1
	)
	for i, pt := range series.Points {
		idx := pt.Period.Year*12 + int(pt.Period.Month) - 1
		v := values[i]
		if math.IsNaN(v) || (prev >= 0 && idx != prev+1) {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
		}
		prev = idx
		if math.IsNaN(v) {
			continue
		}
		cur = append(cur, plotter.XY{X: pt.Period.Time(), Y: v})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}
