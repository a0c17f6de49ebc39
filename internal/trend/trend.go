package trend

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// Options controls the trend engine.
type Options struct {
	Alpha      float64 // significance level
	MinPeriods int     // shortest series that yields a result; at least MinLength
}

func (o Options) minPeriods() int {
	return max(o.MinPeriods, MinLength)
}

// Analyze runs every estimator on one aggregated series of a station. A
// series shorter than the configured minimum fails with
// InsufficientDataError.
func Analyze(st domain.Station, series domain.Series, opts Options) (domain.TrendResult, error) {
	n := series.Len()
	if minN := opts.minPeriods(); n < minN {
		return domain.TrendResult{}, &domain.InsufficientDataError{N: n, Min: minN}
	}
	times, values := series.Times(), series.Values()

	mk, err := MannKendall(values, opts.Alpha)
	if err != nil {
		return domain.TrendResult{}, err
	}
	slope, intercept, err := SensSlope(times, values)
	if err != nil {
		return domain.TrendResult{}, fmt.Errorf("sen's slope: %w", err)
	}
	fit, err := Linear(times, values)
	if err != nil {
		return domain.TrendResult{}, fmt.Errorf("linear fit: %w", err)
	}

	return domain.TrendResult{
		StationID:   st.ID,
		StationName: st.DisplayName(),
		Level:       series.Level,
		Geo:         st.Geo,

		N:         n,
		StartYear: series.Points[0].Period.Year,
		EndYear:   series.Points[n-1].Period.Year,

		S:           mk.S,
		VarS:        mk.VarS,
		Z:           mk.Z,
		Tau:         mk.Tau,
		PValue:      mk.PValue,
		Significant: mk.Significant,
		Direction:   mk.Direction,

		SenSlope:     slope,
		SenIntercept: intercept,

		LinearSlope:  fit.Slope,
		LinearPValue: fit.PValue,

		Mean:           stat.Mean(values, nil),
		FlaggedPeriods: series.FlaggedCount(),
	}, nil
}
