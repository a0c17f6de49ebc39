// Package domain models daily station rainfall and the long-term trend results
// derived from it.
//
// # Data Source
//
// Observations come from the Bangladesh Meteorological Department (BMD) network of
// surface stations. The reference dataset covers 32 stations from 1989 through 2023
// as daily rainfall totals in millimetres, plus a metadata table with each
// station's name and WGS-84 coordinates.
//
// # Conventions
//
// Amounts:
//
//	Daily totals in mm, one row per station per day.
//	Empty cells and the tokens "NA", "NaN", "-", "null" mean "not observed".
//	Negative values are sentinels (BMD uses -999) and also mean "not observed".
//	Trace tokens ("T", "TR", "trace") are recorded as 0 mm.
//
// Dates:
//
//	ISO "2006-01-02" or "2006/01/02", day-first "02-01-2006" / "02/01/2006",
//	or separate Year, Month and Day columns.
//
// Seasons (BMD convention, configurable):
//
//	Winter       Dec-Feb
//	Pre-monsoon  Mar-May
//	Monsoon      Jun-Sep
//	Post-monsoon Oct-Nov
//
// A season is summed per calendar year by default, so Winter 1990 is
// January, February and December 1990. With [SeasonYearFollowing] the months
// before New Year move to the next season-year instead: December 1989 then
// opens Winter 1990.
//
// # Missing Data
//
// A missing day is never treated as zero. Under [PolicyExclude] (the default) any
// month with a missing day is dropped, along with every year or season that
// contains it. Under [PolicyFlag] partial totals are kept and flagged with their
// day coverage so that tables can report how many partial periods went into a
// result.
//
// # Trend Results
//
// Each (station, level) pair yields at most one [TrendResult]. The level is annual
// or one of the configured seasons. Slopes are Sen's estimator in mm/year;
// significance comes from the two-sided Mann-Kendall test with a tie-adjusted
// variance. Pairs that cannot be analysed are reported as an [Exclusion] with the
// error kind and reason, never as a zero-valued result.
package domain
