package render

import (
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

var (
	landFill     = color.RGBA{R: 245, G: 243, B: 236, A: 255}
	outlineColor = color.Gray{Y: 70}
	ringColor    = color.Black
	labelColor   = color.Gray{Y: 30}
	missingColor = color.Gray{Y: 128}
)

// divergingMap returns a blue-white-red map over [-vmax, vmax] with white at zero.
func divergingMap(vmax float64) palette.DivergingColorMap {
	if !(vmax > 0) || math.IsInf(vmax, 0) {
		vmax = 1
	}
	cm := moreland.SmoothBlueRed()
	cm.SetMax(vmax)
	cm.SetMin(-vmax)
	cm.SetConvergePoint(0)
	return cm
}

// colorAt clamps v into the map's range before looking it up.
func colorAt(cm palette.ColorMap, v float64) color.Color {
	if math.IsNaN(v) {
		return missingColor
	}
	v = math.Max(cm.Min(), math.Min(cm.Max(), v))
	c, err := cm.At(v)
	if err != nil {
		return missingColor
	}
	return c
}

// SymmetricMax returns the largest finite |Sen's slope| among results, the
// half-width of a colour scale centred on zero.
func SymmetricMax(results ...[]domain.TrendResult) float64 {
	var vmax float64
	for _, rs := range results {
		for _, r := range rs {
			if math.IsNaN(r.SenSlope) || math.IsInf(r.SenSlope, 0) {
				continue
			}
			vmax = math.Max(vmax, math.Abs(r.SenSlope))
		}
	}
	return vmax
}
