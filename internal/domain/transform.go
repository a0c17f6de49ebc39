package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the accepted date formats, tried in order. Slash and dash
// forms with the year last are day-first, following BMD exports.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"02-01-2006",
	"02/01/2006",
	"2-1-2006",
	"2/1/2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

// missingTokens mark a day without an observation.
var missingTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"-":    true,
	"null": true,
	"***":  true,
}

// traceTokens mark rainfall too small to measure.
var traceTokens = map[string]bool{
	"t":     true,
	"tr":    true,
	"trace": true,
}

// ErrUnparseableAmount is returned by ParseAmount for values that are neither
// numbers nor a known token.
var ErrUnparseableAmount = errors.New("unparseable rainfall amount")

// ParseAmount parses a daily rainfall cell. It returns missing=true for empty
// cells, missing tokens, and negative sentinels; trace tokens parse as 0 mm.
func ParseAmount(s string) (amount float64, missing bool, err error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if missingTokens[lower] {
		return 0, true, nil
	}
	if traceTokens[lower] {
		return 0, false, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrUnparseableAmount, s)
	}
	if math.IsNaN(v) {
		return 0, true, nil
	}
	if math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: %q", ErrUnparseableAmount, s)
	}
	if v < 0 {
		return 0, true, nil
	}
	return v, false, nil
}

// ParseDate parses an observation date in any accepted layout and truncates it
// to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// DateFromParts builds a date from separate year, month and day cells,
// rejecting impossible dates such as 31 April instead of normalizing them.
func DateFromParts(year, month, day string) (time.Time, error) {
	y, errY := strconv.Atoi(strings.TrimSpace(year))
	m, errM := strconv.Atoi(strings.TrimSpace(month))
	d, errD := strconv.Atoi(strings.TrimSpace(day))
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}, fmt.Errorf("unparseable date %s-%s-%s", year, month, day)
	}
	if m < 1 || m > 12 || d < 1 || d > DaysIn(y, time.Month(m)) {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", y, m, d)
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), nil
}

// ParseCoordinate parses a latitude or longitude cell. Empty cells return
// ok=false without an error.
func ParseCoordinate(s string) (v float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if missingTokens[strings.ToLower(s)] {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("unparseable coordinate %q", s)
	}
	return v, true, nil
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
