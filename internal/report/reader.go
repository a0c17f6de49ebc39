package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// record gives access to a CSV row by column name.
type record struct {
	cols map[string]int
	row  []string
	line int
	err  error
}

func (r *record) has(name string) bool {
	_, ok := r.cols[name]
	return ok
}

func (r *record) str(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.row) {
		if r.err == nil {
			r.err = fmt.Errorf("line %d: missing column %q", r.line, name)
		}
		return ""
	}
	return r.row[i]
}

func (r *record) integer(name string) int {
	s := r.str(name)
	n, err := strconv.Atoi(s)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("line %d: %s: %w", r.line, name, err)
	}
	return n
}

// number parses a float; an empty cell is NaN.
func (r *record) number(name string) float64 {
	s := r.str(name)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("line %d: %s: %w", r.line, name, err)
	}
	return v
}

func (r *record) boolean(name string) bool {
	v, err := strconv.ParseBool(r.str(name))
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("line %d: %s: %w", r.line, name, err)
	}
	return v
}

// readRecords calls fn for every data row after checking that the header
// carries the required columns.
func readRecords(in io.Reader, required []string, fn func(*record) error) error {
	cr := csv.NewReader(in)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return errors.New("empty table")
	}
	if err != nil {
		return err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("missing column %q", name)
		}
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		rec := &record{cols: cols, row: row, line: line}
		if err := fn(rec); err != nil {
			return err
		}
		if rec.err != nil {
			return rec.err
		}
	}
}

// ReadSeries reads a monthly, annual or seasonal rainfall table. The level is
// taken from the columns present.
func ReadSeries(in io.Reader) ([]domain.Series, error) {
	var (
		out   []domain.Series
		index = map[string]int{}
	)
	err := readRecords(in, []string{"station_id", "year", "rainfall_mm", "coverage", "flagged"}, func(r *record) error {
		id := r.str("station_id")
		p := domain.PeriodTotal{
			Period:   domain.Period{Year: r.integer("year")},
			Total:    r.number("rainfall_mm"),
			Coverage: r.number("coverage"),
			Flagged:  r.boolean("flagged"),
		}
		level := domain.Annual
		switch {
		case r.has("month"):
			level = domain.Monthly
			p.Period.Month = time.Month(r.integer("month"))
		case r.has("season"):
			level = domain.SeasonLevel(r.str("season"))
			p.Period.Season = level.Season
		}

		key := id + "\x00" + level.String()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, domain.Series{StationID: id, Level: level})
		}
		out[i].Points = append(out[i].Points, p)
		return nil
	})
	return out, err
}

// ReadResults reads a station or seasonal trend table.
func ReadResults(in io.Reader) ([]domain.TrendResult, error) {
	var out []domain.TrendResult
	err := readRecords(in, stationsHeader, func(r *record) error {
		res := domain.TrendResult{
			StationID:      r.str("station_id"),
			StationName:    r.str("station"),
			Level:          domain.Annual,
			N:              r.integer("n_years"),
			StartYear:      r.integer("start_year"),
			EndYear:        r.integer("end_year"),
			Tau:            r.number("mk_tau"),
			S:              r.number("mk_s"),
			VarS:           r.number("mk_var_s"),
			Z:              r.number("mk_z"),
			PValue:         r.number("mk_p_value"),
			Significant:    r.boolean("significant"),
			Direction:      domain.Direction(r.str("direction")),
			SenSlope:       r.number("sen_slope_mm_per_year"),
			SenIntercept:   r.number("sen_intercept"),
			LinearSlope:    r.number("linear_slope_mm_per_year"),
			LinearPValue:   r.number("linear_p_value"),
			Mean:           r.number("mean_rainfall_mm"),
			FlaggedPeriods: r.integer("flagged_periods"),
		}
		if r.has("season") {
			res.Level = domain.SeasonLevel(r.str("season"))
		}
		if lat, lon := r.number("lat"), r.number("lon"); !math.IsNaN(lat) && !math.IsNaN(lon) {
			res.Geo = domain.Geo{Lat: lat, Lon: lon}
		}
		if got := r.str("trend"); r.err == nil && got != res.Trend() {
			return fmt.Errorf("line %d: trend %q disagrees with significant=%t direction=%q", r.line, got, res.Significant, res.Direction)
		}
		out = append(out, res)
		return nil
	})
	return out, err
}

// ReadExclusions reads the exclusions table.
func ReadExclusions(in io.Reader) ([]domain.Exclusion, error) {
	var out []domain.Exclusion
	err := readRecords(in, exclusionsHeader, func(r *record) error {
		e := domain.Exclusion{
			StationID: r.str("station_id"),
			Level:     r.str("level"),
			Stage:     r.str("stage"),
			Kind:      r.str("kind"),
			Reason:    r.str("reason"),
		}
		if e.Level == "all" {
			e.Level = ""
		}
		out = append(out, e)
		return nil
	})
	return out, err
}
