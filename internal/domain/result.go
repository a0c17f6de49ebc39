package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Direction is the sign of the Mann-Kendall statistic S.
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	NoTrend    Direction = "no trend"
)

// TrendResult is the outcome of the trend engine for one (station, level) pair.
type TrendResult struct {
	StationID   string `json:"station_id"`
	StationName string `json:"station"`
	Level       Level  `json:"level"`
	Geo         Geo    `json:"geo"`

	N         int `json:"n_years"`
	StartYear int `json:"start_year"`
	EndYear   int `json:"end_year"`

	// Mann-Kendall.
	S           float64   `json:"mk_s"`
	VarS        float64   `json:"mk_var_s"`
	Z           float64   `json:"mk_z"`
	Tau         float64   `json:"mk_tau"`
	PValue      float64   `json:"mk_p_value"`
	Significant bool      `json:"significant"`
	Direction   Direction `json:"direction"`

	// Sen's estimator, mm/year.
	SenSlope     float64 `json:"sen_slope_mm_per_year"`
	SenIntercept float64 `json:"sen_intercept"`

	// Ordinary least squares, for comparison.
	LinearSlope  float64 `json:"linear_slope_mm_per_year"`
	LinearPValue float64 `json:"linear_p_value"`

	Mean           float64 `json:"mean_rainfall_mm"`
	FlaggedPeriods int     `json:"flagged_periods"`
}

// Trend returns the label reported in tables: the direction when the test is
// significant, "no trend" otherwise.
func (r TrendResult) Trend() string {
	if r.Significant {
		return string(r.Direction)
	}
	return string(NoTrend)
}

// Mappable reports whether the result can be placed on a map.
func (r TrendResult) Mappable() bool {
	return !r.Geo.IsZero()
}

// plainResult has the fields of TrendResult without its JSON methods.
type plainResult TrendResult

// resultJSON is the wire form of a TrendResult. Its statistics shadow the
// embedded float fields so undefined values travel as null.
type resultJSON struct {
	plainResult
	S            *float64 `json:"mk_s"`
	VarS         *float64 `json:"mk_var_s"`
	Z            *float64 `json:"mk_z"`
	Tau          *float64 `json:"mk_tau"`
	PValue       *float64 `json:"mk_p_value"`
	SenSlope     *float64 `json:"sen_slope_mm_per_year"`
	SenIntercept *float64 `json:"sen_intercept"`
	LinearSlope  *float64 `json:"linear_slope_mm_per_year"`
	LinearPValue *float64 `json:"linear_p_value"`
	Mean         *float64 `json:"mean_rainfall_mm"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// MarshalJSON encodes non-finite statistics as null.
func (r TrendResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		plainResult:  plainResult(r),
		S:            finite(r.S),
		VarS:         finite(r.VarS),
		Z:            finite(r.Z),
		Tau:          finite(r.Tau),
		PValue:       finite(r.PValue),
		SenSlope:     finite(r.SenSlope),
		SenIntercept: finite(r.SenIntercept),
		LinearSlope:  finite(r.LinearSlope),
		LinearPValue: finite(r.LinearPValue),
		Mean:         finite(r.Mean),
	})
}

// UnmarshalJSON decodes null statistics as NaN.
func (r *TrendResult) UnmarshalJSON(b []byte) error {
	var v resultJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = TrendResult(v.plainResult)
	r.S, r.VarS, r.Z, r.Tau = orNaN(v.S), orNaN(v.VarS), orNaN(v.Z), orNaN(v.Tau)
	r.PValue, r.SenSlope, r.SenIntercept = orNaN(v.PValue), orNaN(v.SenSlope), orNaN(v.SenIntercept)
	r.LinearSlope, r.LinearPValue, r.Mean = orNaN(v.LinearSlope), orNaN(v.LinearPValue), orNaN(v.Mean)
	return nil
}

// Exclusion stages.
const (
	StageLoad  = "load"
	StageTrend = "trend"
	StageMap   = "map"
)

// Exclusion records why a station, or one of its levels, was left out of an output.
type Exclusion struct {
	StationID string `json:"station_id"`
	Level     string `json:"level,omitempty"` // empty means every level
	Stage     string `json:"stage"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// NewExclusion builds an Exclusion from an error, classifying it with ErrorKind.
func NewExclusion(stationID, level, stage string, err error) Exclusion {
	return Exclusion{
		StationID: stationID,
		Level:     level,
		Stage:     stage,
		Kind:      ErrorKind(err),
		Reason:    err.Error(),
	}
}

// AnalysisSummary records the settings a run used.
type AnalysisSummary struct {
	SignificanceLevel float64        `json:"significance_level"`
	MinPeriods        int            `json:"min_periods"`
	MissingPolicy     MissingPolicy  `json:"missing_policy"`
	StartYear         int            `json:"start_year"`
	EndYear           int            `json:"end_year"`
	IDWPower          float64        `json:"idw_power"`
	Seasons           []string       `json:"seasons"`
	SeasonYear        SeasonYearRule `json:"season_year,omitempty"`
}

// Run identifies one pipeline execution.
type Run struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Stations    int             `json:"stations"`
	Results     int             `json:"results"`
	Excluded    int             `json:"excluded"`
	Analysis    AnalysisSummary `json:"analysis"`
}

// Report is everything a run produced.
type Report struct {
	Run        Run
	Stations   []Station
	Monthly    []Series
	Annual     []Series
	Seasonal   []Series
	Results    []TrendResult // annual first, then seasons in configured order
	Exclusions []Exclusion
	Artifacts  []string // files written under the output directory
}

// ResultsAt returns the results of one level, in station order.
func (r *Report) ResultsAt(level Level) []TrendResult {
	var out []TrendResult
	for _, res := range r.Results {
		if res.Level == level {
			out = append(out, res)
		}
	}
	return out
}
