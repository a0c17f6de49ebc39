// Package trend implements the Mann-Kendall monotonic trend test, Sen's slope
// estimator and an ordinary least-squares fit for yearly rainfall series.
package trend

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// MinLength is the shortest series the Mann-Kendall test accepts.
const MinLength = 4

// MannKendallResult is the outcome of the two-sided Mann-Kendall test.
type MannKendallResult struct {
	N           int
	S           float64
	VarS        float64
	Z           float64
	Tau         float64
	PValue      float64
	Significant bool // PValue < alpha
	Direction   domain.Direction
}

// MannKendall runs the original (non-seasonal) Mann-Kendall test on values in
// time order. The variance is corrected for tied groups and Z carries the
// usual continuity correction.
func MannKendall(values []float64, alpha float64) (MannKendallResult, error) {
	n := len(values)
	if n < MinLength {
		return MannKendallResult{}, &domain.InsufficientDataError{N: n, Min: MinLength}
	}

	var s float64
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			s += sign(values[j] - values[i])
		}
	}

	nf := float64(n)
	varS := (nf*(nf-1)*(2*nf+5) - tieCorrection(values)) / 18

	var z float64
	switch {
	case varS <= 0 || s == 0:
		z = 0
	case s > 0:
		z = (s - 1) / math.Sqrt(varS)
	default:
		z = (s + 1) / math.Sqrt(varS)
	}
	p := 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))

	res := MannKendallResult{
		N:           n,
		S:           s,
		VarS:        varS,
		Z:           z,
		Tau:         s / (nf * (nf - 1) / 2),
		PValue:      p,
		Significant: p < alpha,
		Direction:   domain.NoTrend,
	}
	switch {
	case s > 0:
		res.Direction = domain.Increasing
	case s < 0:
		res.Direction = domain.Decreasing
	}
	return res, nil
}

// tieCorrection returns the sum of t(t-1)(2t+5) over groups of equal values.
func tieCorrection(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if t := float64(j - i); t > 1 {
			sum += t * (t - 1) * (2*t + 5)
		}
		i = j
	}
	return sum
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
