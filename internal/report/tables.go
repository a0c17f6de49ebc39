// Package report writes a run's aggregated series, trend results and
// exclusions as CSV tables and an Excel workbook, and reads the tables back.
package report

import (
	"fmt"
	"math"
	"strconv"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// Output file names.
const (
	MonthlyFile    = "Rainfall_monthly.csv"
	AnnualFile     = "Rainfall_annual.csv"
	SeasonalFile   = "Rainfall_seasonal.csv"
	StationsFile   = "Trend_results_stations.csv"
	SeasonsFile    = "Trend_results_seasonal.csv"
	ExclusionsFile = "Trend_exclusions.csv"
	WorkbookFile   = "Trend_results.xlsx"
)

// table is a header and typed rows, rendered to CSV text or workbook cells.
type table struct {
	sheet  string
	header []string
	rows   [][]any
}

var (
	monthlyHeader  = []string{"station_id", "station", "year", "month", "rainfall_mm", "coverage", "flagged"}
	annualHeader   = []string{"station_id", "station", "year", "rainfall_mm", "coverage", "flagged"}
	seasonalHeader = []string{"station_id", "station", "season", "year", "rainfall_mm", "coverage", "flagged"}

	resultColumns = []string{
		"lat", "lon", "n_years", "start_year", "end_year",
		"mk_tau", "mk_s", "mk_var_s", "mk_z", "mk_p_value",
		"trend", "significant", "direction",
		"sen_slope_mm_per_year", "sen_intercept",
		"linear_slope_mm_per_year", "linear_p_value",
		"mean_rainfall_mm", "flagged_periods",
	}
	stationsHeader   = append([]string{"station_id", "station"}, resultColumns...)
	seasonsHeader    = append([]string{"station_id", "station", "season"}, resultColumns...)
	exclusionsHeader = []string{"station_id", "level", "stage", "kind", "reason"}
)

func seriesTable(kind domain.LevelKind, series []domain.Series, names map[string]string) table {
	var t table
	switch kind {
	case domain.LevelMonthly:
		t.sheet, t.header = "Monthly rainfall", monthlyHeader
	case domain.LevelAnnual:
		t.sheet, t.header = "Annual rainfall", annualHeader
	default:
		t.sheet, t.header = "Seasonal rainfall", seasonalHeader
	}
	for _, s := range series {
		for _, p := range s.Points {
			row := []any{s.StationID, names[s.StationID]}
			switch kind {
			case domain.LevelMonthly:
				row = append(row, p.Period.Year, int(p.Period.Month))
			case domain.LevelAnnual:
				row = append(row, p.Period.Year)
			default:
				row = append(row, s.Level.Season, p.Period.Year)
			}
			t.rows = append(t.rows, append(row, p.Total, p.Coverage, p.Flagged))
		}
	}
	return t
}

func resultsTable(results []domain.TrendResult, seasonal bool) table {
	t := table{sheet: "Annual", header: stationsHeader}
	if seasonal {
		t.sheet, t.header = "Seasonal", seasonsHeader
	}
	for _, r := range results {
		row := []any{r.StationID, r.StationName}
		if seasonal {
			row = append(row, r.Level.Season)
		}
		var lat, lon any
		if r.Mappable() {
			lat, lon = r.Geo.Lat, r.Geo.Lon
		}
		row = append(row,
			lat, lon, r.N, r.StartYear, r.EndYear,
			r.Tau, r.S, r.VarS, r.Z, r.PValue,
			r.Trend(), r.Significant, string(r.Direction),
			r.SenSlope, r.SenIntercept,
			r.LinearSlope, r.LinearPValue,
			r.Mean, r.FlaggedPeriods,
		)
		t.rows = append(t.rows, row)
	}
	return t
}

func exclusionsTable(exclusions []domain.Exclusion) table {
	t := table{sheet: "Exclusions", header: exclusionsHeader}
	for _, e := range exclusions {
		level := e.Level
		if level == "" {
			level = "all"
		}
		t.rows = append(t.rows, []any{e.StationID, level, e.Stage, e.Kind, e.Reason})
	}
	return t
}

// formatCell renders a value as CSV text. Missing coordinates and undefined
// statistics are empty cells.
func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// workbookCell converts a value for a spreadsheet cell, where NaN is not representable.
func workbookCell(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}
