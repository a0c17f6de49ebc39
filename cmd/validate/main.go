// Command validate re-reads the tables written by a trend run and checks them
// against the daily input data: annual totals are recomputed from the raw
// records, result statistics are checked against the annual table, and every
// loaded station must be accounted for by a result or an exclusion.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -meta data/mock/station_metadata.csv \
//	  -daily data/mock/daily \
//	  -out output
//
// The analysis settings (significance level, missing-data policy, years) are
// read from the same environment as cmd/trends.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/rainfall-trend-etl/internal/config"
	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/loader"
	"github.com/couchcryptid/rainfall-trend-etl/internal/report"
)

// tolerance for totals and means, which are summed in a different order here.
const tolerance = 0.01

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// outputs are the tables of one run.
type outputs struct {
	annual     []domain.Series
	stations   []domain.TrendResult
	seasonal   []domain.TrendResult
	exclusions []domain.Exclusion
}

func main() {
	metaPath := flag.String("meta", "", "station metadata CSV")
	dailyPath := flag.String("daily", "", "directory of daily CSVs or a combined daily CSV")
	outDir := flag.String("out", "", "output directory of the run")
	flag.Parse()

	if *metaPath == "" || *dailyPath == "" || *outDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*metaPath, *dailyPath, *outDir); code != 0 {
		os.Exit(code)
	}
}

func run(metaPath, dailyPath, outDir string) int {
	fmt.Println("=== Rainfall Trend Output Validation ===")
	fmt.Println()

	analysis, err := config.LoadAnalysis()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: analysis config: %v\n", err)
		return 1
	}

	loaded, err := loader.New(slog.New(slog.NewTextHandler(io.Discard, nil))).LoadStations(metaPath, dailyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load inputs: %v\n", err)
		return 1
	}

	out, err := loadOutputs(outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load outputs: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateAnnualTotals(loaded.Stations, out.annual, analysis),
		validateAnnualResults(out.stations, out.annual, analysis),
		validateSeasonalResults(out.seasonal, analysis),
		validateCoverage(loaded.Stations, out),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Stations: %d loaded, %d load exclusions; rows: %d annual series, %d annual results, %d seasonal results, %d exclusions\n",
		len(loaded.Stations), len(loaded.Exclusions), len(out.annual), len(out.stations), len(out.seasonal), len(out.exclusions))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadOutputs(dir string) (*outputs, error) {
	out := &outputs{}
	var err error
	if out.annual, err = readTable(dir, report.AnnualFile, report.ReadSeries); err != nil {
		return nil, err
	}
	if out.stations, err = readTable(dir, report.StationsFile, report.ReadResults); err != nil {
		return nil, err
	}
	if out.seasonal, err = readTable(dir, report.SeasonsFile, report.ReadResults); err != nil {
		return nil, err
	}
	if out.exclusions, err = readTable(dir, report.ExclusionsFile, report.ReadExclusions); err != nil {
		return nil, err
	}
	return out, nil
}

func readTable[T any](dir, name string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rows, nil
}

// yearTotal is a calendar-year sum taken straight from the daily records.
type yearTotal struct {
	total    float64
	observed int
}

func dailyTotals(st domain.Station) map[int]yearTotal {
	out := make(map[int]yearTotal)
	for _, o := range st.Observations {
		if o.Missing {
			continue
		}
		y := out[o.Date.Year()]
		y.total += o.Amount
		y.observed++
		out[o.Date.Year()] = y
	}
	return out
}

func daysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

func inWindow(year int, a config.Analysis) bool {
	return year >= a.StartYear && year <= a.EndYear
}

// ── Phase 1: annual totals ──

func validateAnnualTotals(stations []domain.Station, annual []domain.Series, a config.Analysis) *phase {
	p := &phase{name: "Annual totals match daily data"}
	fmt.Println("Phase 1: Annual totals vs. daily records")

	byID := make(map[string]domain.Station, len(stations))
	for _, st := range stations {
		byID[st.ID] = st
	}

	checked := 0
	for _, s := range annual {
		st, ok := byID[s.StationID]
		if !ok {
			p.errorf("%s: annual rows for a station that was not loaded", s.StationID)
			continue
		}
		totals := dailyTotals(st)
		seen := make(map[int]bool, len(s.Points))
		for _, pt := range s.Points {
			year := pt.Period.Year
			seen[year] = true
			if !inWindow(year, a) {
				p.errorf("%s %d: year outside %d-%d", s.StationID, year, a.StartYear, a.EndYear)
			}
			want := totals[year]
			if math.Abs(want.total-pt.Total) > tolerance {
				p.errorf("%s %d: table total %.2f mm, daily records sum to %.2f mm", s.StationID, year, pt.Total, want.total)
			}
			complete := want.observed == daysInYear(year)
			if !pt.Flagged && !complete {
				p.errorf("%s %d: unflagged total with %d of %d days observed", s.StationID, year, want.observed, daysInYear(year))
			}
			if pt.Flagged && a.MissingPolicy == domain.PolicyExclude {
				p.errorf("%s %d: flagged total under the exclude policy", s.StationID, year)
			}
			checked++
		}

		for year, y := range totals {
			if inWindow(year, a) && y.observed == daysInYear(year) && !seen[year] {
				p.errorf("%s %d: complete year missing from the annual table", s.StationID, year)
			}
		}
	}
	fmt.Printf("  %d station-years checked\n", checked)
	return p
}

// ── Phase 2: annual results ──

func validateAnnualResults(results []domain.TrendResult, annual []domain.Series, a config.Analysis) *phase {
	p := &phase{name: "Annual results match the annual table"}
	fmt.Println("Phase 2: Annual trend results")

	series := make(map[string]domain.Series, len(annual))
	for _, s := range annual {
		series[s.StationID] = s
	}

	for _, r := range results {
		checkResult(p, r, a)
		s, ok := series[r.StationID]
		if !ok {
			p.errorf("%s: result without annual rows", r.StationID)
			continue
		}
		if r.N != s.Len() {
			p.errorf("%s: n_years=%d, annual table has %d rows", r.StationID, r.N, s.Len())
			continue
		}
		if first, last := s.Points[0].Period.Year, s.Points[s.Len()-1].Period.Year; r.StartYear != first || r.EndYear != last {
			p.errorf("%s: years %d-%d, annual table spans %d-%d", r.StationID, r.StartYear, r.EndYear, first, last)
		}
		var sum float64
		for _, v := range s.Values() {
			sum += v
		}
		if mean := sum / float64(s.Len()); math.Abs(mean-r.Mean) > tolerance {
			p.errorf("%s: mean %.2f mm, annual table averages %.2f mm", r.StationID, r.Mean, mean)
		}
		if r.FlaggedPeriods != s.FlaggedCount() {
			p.errorf("%s: flagged_periods=%d, annual table has %d flagged rows", r.StationID, r.FlaggedPeriods, s.FlaggedCount())
		}
	}
	fmt.Printf("  %d results checked\n", len(results))
	return p
}

// checkResult applies the checks that need no other table.
func checkResult(p *phase, r domain.TrendResult, a config.Analysis) {
	key := r.StationID + " " + r.Level.String()
	if r.N < a.MinPeriods {
		p.errorf("%s: %d periods, below the minimum of %d", key, r.N, a.MinPeriods)
	}
	if sig := r.PValue < a.SignificanceLevel; sig != r.Significant {
		p.errorf("%s: p=%.4f but significant=%t at alpha=%v", key, r.PValue, r.Significant, a.SignificanceLevel)
	}
	if r.PValue < 0 || r.PValue > 1 {
		p.errorf("%s: p-value %v outside [0, 1]", key, r.PValue)
	}
	if r.Tau < -1 || r.Tau > 1 {
		p.errorf("%s: tau %v outside [-1, 1]", key, r.Tau)
	}
	if !r.Significant {
		return
	}
	switch {
	case r.Direction == domain.Increasing && r.SenSlope < 0:
		p.errorf("%s: increasing trend with Sen slope %.3f", key, r.SenSlope)
	case r.Direction == domain.Decreasing && r.SenSlope > 0:
		p.errorf("%s: decreasing trend with Sen slope %.3f", key, r.SenSlope)
	case r.Direction == domain.NoTrend:
		p.errorf("%s: significant result without a direction", key)
	}
}

// ── Phase 3: seasonal results ──

func validateSeasonalResults(results []domain.TrendResult, a config.Analysis) *phase {
	p := &phase{name: "Seasonal results are consistent"}
	fmt.Println("Phase 3: Seasonal trend results")

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if _, ok := a.Season(r.Level.Season); !ok {
			p.errorf("%s: unknown season %q", r.StationID, r.Level.Season)
		}
		key := r.StationID + "|" + r.Level.String()
		if seen[key] {
			p.errorf("%s %s: duplicate result", r.StationID, r.Level.String())
		}
		seen[key] = true
		checkResult(p, r, a)
	}
	fmt.Printf("  %d results checked\n", len(results))
	return p
}

// ── Phase 4: station coverage ──

func validateCoverage(stations []domain.Station, out *outputs) *phase {
	p := &phase{name: "Every station has a result or exclusion"}
	fmt.Println("Phase 4: Station coverage")

	hasResult := make(map[string]bool, len(out.stations))
	for _, r := range out.stations {
		if hasResult[r.StationID] {
			p.errorf("%s: duplicate annual result", r.StationID)
		}
		hasResult[r.StationID] = true
	}
	excluded := make(map[string]bool)
	for _, ex := range out.exclusions {
		if ex.Stage == domain.StageMap {
			continue
		}
		if ex.Level == "" || ex.Level == domain.Annual.String() {
			excluded[ex.StationID] = true
		}
	}

	for _, st := range stations {
		switch {
		case hasResult[st.ID] && excluded[st.ID]:
			p.errorf("%s: both an annual result and an annual exclusion", st.ID)
		case !hasResult[st.ID] && !excluded[st.ID]:
			p.errorf("%s: neither an annual result nor an exclusion", st.ID)
		}
	}
	fmt.Printf("  %d stations checked\n", len(stations))
	return p
}
