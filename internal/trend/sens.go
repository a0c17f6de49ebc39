package trend

import (
	"errors"
	"slices"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// SensSlope returns Sen's slope, the median of (x_j - x_i)/(t_j - t_i) over
// all pairs i < j, and the intercept median(x) - slope*median(t). Pairs with
// equal times are skipped.
func SensSlope(times, values []float64) (slope, intercept float64, err error) {
	n := len(values)
	if len(times) != n {
		return 0, 0, errors.New("times and values differ in length")
	}
	if n < 2 {
		return 0, 0, &domain.InsufficientDataError{N: n, Min: 2}
	}

	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			dt := times[j] - times[i]
			if dt == 0 {
				continue
			}
			slopes = append(slopes, (values[j]-values[i])/dt)
		}
	}
	if len(slopes) == 0 {
		return 0, 0, errors.New("all observations share one time")
	}

	slope = median(slopes)
	intercept = median(values) - slope*median(times)
	return slope, intercept, nil
}

// median averages the two middle values of an even-length input.
func median(xs []float64) float64 {
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
