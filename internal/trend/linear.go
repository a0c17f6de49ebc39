package trend

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LinearFit is an ordinary least-squares line y = Intercept + Slope*t.
type LinearFit struct {
	Slope     float64
	Intercept float64
	PValue    float64 // two-sided test of Slope = 0
	RSquared  float64
}

// Linear fits values against times by least squares. The p-value uses a
// Student t distribution with n-2 degrees of freedom.
func Linear(times, values []float64) (LinearFit, error) {
	n := len(values)
	if len(times) != n {
		return LinearFit{}, errors.New("times and values differ in length")
	}
	if n < 3 {
		return LinearFit{}, errors.New("linear fit needs at least 3 points")
	}
	meanT := stat.Mean(times, nil)
	var sxx float64
	for i := 0; i < n; i++ {
		d := times[i] - meanT
		sxx += d * d
	}
	if sxx == 0 {
		return LinearFit{}, errors.New("all observations share one time")
	}

	intercept, slope := stat.LinearRegression(times, values, nil, false)

	var ssr float64
	for i := 0; i < n; i++ {
		r := values[i] - (intercept + slope*times[i])
		ssr += r * r
	}
	fit := LinearFit{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  stat.RSquared(times, values, nil, intercept, slope),
	}

	se := math.Sqrt(ssr / float64(n-2) / sxx)
	switch {
	case se == 0 && slope == 0:
		fit.PValue = 1
	case se == 0:
		fit.PValue = 0
	default:
		tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
		fit.PValue = 2 * tdist.Survival(math.Abs(slope/se))
	}
	return fit, nil
}
