// Package aggregate turns daily station observations into monthly, annual and
// seasonal rainfall totals under a missing-data policy.
package aggregate

import (
	"math"
	"time"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// Options controls aggregation. A zero StartYear or EndYear leaves that side
// of the analysis window open. An empty SeasonYear is SeasonYearCalendar.
type Options struct {
	Policy     domain.MissingPolicy
	StartYear  int
	EndYear    int
	SeasonYear domain.SeasonYearRule
}

func (o Options) inWindow(year int) bool {
	if o.StartYear != 0 && year < o.StartYear {
		return false
	}
	if o.EndYear != 0 && year > o.EndYear {
		return false
	}
	return true
}

func (o Options) flag() bool {
	return o.Policy == domain.PolicyFlag
}

// Aggregates holds every series derived from one station.
type Aggregates struct {
	Monthly  domain.Series
	Annual   domain.Series
	Seasonal []domain.Series // one per season, in the order given
}

// All computes the monthly, annual and seasonal series for a station.
func All(st domain.Station, seasons []domain.Season, opts Options) Aggregates {
	monthly := Monthly(st, opts)
	return Aggregates{
		Monthly:  monthly,
		Annual:   Annual(monthly, opts),
		Seasonal: Seasonal(seasonMonths(st, monthly, opts), seasons, opts),
	}
}

// seasonMonths returns the monthly series seasons are summed from. Under
// SeasonYearFollowing the first season-year of the window reaches back into
// the year before StartYear, so those months are kept too.
func seasonMonths(st domain.Station, monthly domain.Series, opts Options) domain.Series {
	if opts.SeasonYear != domain.SeasonYearFollowing || opts.StartYear == 0 {
		return monthly
	}
	lead := opts
	lead.StartYear--
	return Monthly(st, lead)
}

type monthKey struct {
	year  int
	month time.Month
}

// Monthly sums daily amounts per calendar month. A day absent from the input
// counts as missing, the same as an explicit missing token. Under
// PolicyExclude a month with any missing day is dropped; under PolicyFlag it
// is kept with its coverage unless no day was observed at all.
func Monthly(st domain.Station, opts Options) domain.Series {
	type acc struct {
		total    float64
		observed int
	}
	var (
		order []monthKey
		sums  = make(map[monthKey]*acc)
	)
	for _, o := range st.Observations {
		k := monthKey{year: o.Date.Year(), month: o.Date.Month()}
		if !opts.inWindow(k.year) {
			continue
		}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
			order = append(order, k)
		}
		if o.Missing {
			continue
		}
		a.total += o.Amount
		a.observed++
	}

	out := domain.Series{StationID: st.ID, Level: domain.Monthly}
	for _, k := range order {
		a := sums[k]
		days := domain.DaysIn(k.year, k.month)
		pt := domain.PeriodTotal{
			Period:   domain.Period{Year: k.year, Month: k.month},
			Total:    a.total,
			Coverage: 1,
		}
		if a.observed < days {
			if !opts.flag() || a.observed == 0 {
				continue
			}
			pt.Coverage = float64(a.observed) / float64(days)
			pt.Flagged = true
		}
		out.Points = append(out.Points, pt)
	}
	return out
}

// Annual sums the monthly totals of each calendar year. Under PolicyExclude a
// year needs all twelve months; under PolicyFlag a year with gaps is kept and
// flagged, its coverage weighted by the days of each month.
func Annual(monthly domain.Series, opts Options) domain.Series {
	out := domain.Series{StationID: monthly.StationID, Level: domain.Annual}
	groups, years := groupBy(monthly.Points, func(p domain.Period) (int, bool) {
		return p.Year, opts.inWindow(p.Year)
	})
	for _, year := range years {
		pt, ok := combine(groups[year], year, calendarYear, opts)
		if !ok {
			continue
		}
		pt.Period = domain.Period{Year: year}
		out.Points = append(out.Points, pt)
	}
	return out
}

// Seasonal sums the monthly totals of each season per season-year. By default
// the season-year is the calendar year of each month. Under
// SeasonYearFollowing a season that crosses New Year takes its early months
// from the previous calendar year, so December 1989 counts toward Winter 1990
// and monthly must reach back to December of the year before the window.
func Seasonal(monthly domain.Series, seasons []domain.Season, opts Options) []domain.Series {
	out := make([]domain.Series, 0, len(seasons))
	for _, season := range seasons {
		s := domain.Series{StationID: monthly.StationID, Level: domain.SeasonLevel(season.Name)}
		groups, years := groupBy(monthly.Points, func(p domain.Period) (int, bool) {
			if !season.Contains(p.Month) {
				return 0, false
			}
			sy := season.SeasonYear(p.Year, p.Month, opts.SeasonYear)
			return sy, opts.inWindow(sy)
		})
		for _, year := range years {
			pt, ok := combine(groups[year], year, season, opts)
			if !ok {
				continue
			}
			pt.Period = domain.Period{Year: year, Season: season.Name}
			s.Points = append(s.Points, pt)
		}
		out = append(out, s)
	}
	return out
}

// groupBy buckets monthly points by the key returned from keyFn, preserving
// first-seen key order. Points for which keyFn returns false are skipped.
func groupBy(points []domain.PeriodTotal, keyFn func(domain.Period) (int, bool)) (map[int][]domain.PeriodTotal, []int) {
	groups := make(map[int][]domain.PeriodTotal)
	var keys []int
	for _, p := range points {
		k, ok := keyFn(p.Period)
		if !ok {
			continue
		}
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], p)
	}
	return groups, keys
}

// calendarYear treats a whole year as a season for combine.
var calendarYear = domain.Season{
	Name: "Year",
	Months: []time.Month{
		time.January, time.February, time.March, time.April, time.May, time.June,
		time.July, time.August, time.September, time.October, time.November, time.December,
	},
}

// combine sums the monthly totals of one season-year, looking each month's
// length up in the calendar year the season-year rule puts it in.
func combine(points []domain.PeriodTotal, seasonYear int, season domain.Season, opts Options) (domain.PeriodTotal, bool) {
	if len(points) == 0 {
		return domain.PeriodTotal{}, false
	}
	present := make(map[time.Month]domain.PeriodTotal, len(points))
	for _, p := range points {
		present[p.Period.Month] = p
	}

	var (
		total, observedDays, allDays float64
		flagged                      bool
	)
	for _, m := range season.Months {
		days := float64(domain.DaysIn(season.MonthYear(seasonYear, m, opts.SeasonYear), m))
		allDays += days

		p, ok := present[m]
		if !ok {
			flagged = true
			continue
		}
		total += p.Total
		observedDays += p.Coverage * days
		flagged = flagged || p.Flagged
	}

	if flagged && !opts.flag() {
		return domain.PeriodTotal{}, false
	}
	pt := domain.PeriodTotal{Total: total, Coverage: 1, Flagged: flagged}
	if flagged {
		pt.Coverage = observedDays / allDays
	}
	return pt, true
}

// RollingMean returns, for each point of a monthly series, the mean of the
// totals in the window calendar months ending at that point. Fewer than
// minPeriods totals in the window yields NaN.
func RollingMean(monthly domain.Series, window, minPeriods int) []float64 {
	out := make([]float64, len(monthly.Points))
	idx := func(p domain.Period) int { return p.Year*12 + int(p.Month) - 1 }

	start := 0
	var sum float64
	for i, p := range monthly.Points {
		sum += p.Total
		for idx(monthly.Points[start].Period) <= idx(p.Period)-window {
			sum -= monthly.Points[start].Total
			start++
		}
		if n := i - start + 1; n >= minPeriods {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
