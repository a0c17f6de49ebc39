package domain

import (
	"fmt"
	"time"
)

// MissingPolicy decides how periods with missing daily data are aggregated.
type MissingPolicy string

const (
	// PolicyExclude drops any period with at least one missing day.
	PolicyExclude MissingPolicy = "exclude"
	// PolicyFlag keeps partial totals and flags them with their coverage.
	PolicyFlag MissingPolicy = "flag"
)

// ParseMissingPolicy validates a policy name.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(s) {
	case PolicyExclude, PolicyFlag:
		return MissingPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown missing-data policy %q (want %q or %q)", s, PolicyExclude, PolicyFlag)
	}
}

// Period identifies one aggregation bucket. Month is zero for annual and
// seasonal periods; Season is set only for seasonal periods, where Year is the
// season-year.
type Period struct {
	Year   int        `json:"year"`
	Month  time.Month `json:"month,omitempty"`
	Season string     `json:"season,omitempty"`
}

func (p Period) String() string {
	switch {
	case p.Season != "":
		return fmt.Sprintf("%s %d", p.Season, p.Year)
	case p.Month != 0:
		return fmt.Sprintf("%d-%02d", p.Year, int(p.Month))
	default:
		return fmt.Sprintf("%d", p.Year)
	}
}

// Time returns the period position in fractional years. Annual and seasonal
// periods sit on whole years, so pairwise slopes come out in mm/year.
func (p Period) Time() float64 {
	if p.Month == 0 {
		return float64(p.Year)
	}
	return float64(p.Year) + float64(p.Month-1)/12
}

// PeriodTotal is the rainfall total of one period.
type PeriodTotal struct {
	Period   Period  `json:"period"`
	Total    float64 `json:"total_mm"`
	Coverage float64 `json:"coverage"` // observed days / calendar days, 1 when complete
	Flagged  bool    `json:"flagged,omitempty"`
}

// Series is the ordered aggregated series of one station at one level.
type Series struct {
	StationID string        `json:"station"`
	Level     Level         `json:"level"`
	Points    []PeriodTotal `json:"points"`
}

// Len returns the number of periods.
func (s Series) Len() int { return len(s.Points) }

// Times returns the period positions in fractional years.
func (s Series) Times() []float64 {
	out := make([]float64, len(s.Points))
	for i := range s.Points {
		out[i] = s.Points[i].Period.Time()
	}
	return out
}

// Values returns the period totals.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i := range s.Points {
		out[i] = s.Points[i].Total
	}
	return out
}

// FlaggedCount returns how many periods carry partial totals.
func (s Series) FlaggedCount() int {
	n := 0
	for i := range s.Points {
		if s.Points[i].Flagged {
			n++
		}
	}
	return n
}
