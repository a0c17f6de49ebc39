package domain

import (
	"fmt"
	"strings"
	"time"
)

// LevelKind is the closed set of aggregation levels.
type LevelKind int

const (
	LevelMonthly LevelKind = iota
	LevelAnnual
	LevelSeasonal
)

// Level identifies an aggregation level. Season is set only for LevelSeasonal.
type Level struct {
	Kind   LevelKind
	Season string
}

// Annual is the calendar-year level.
var Annual = Level{Kind: LevelAnnual}

// Monthly is the calendar-month level.
var Monthly = Level{Kind: LevelMonthly}

// SeasonLevel returns the level for the named season.
func SeasonLevel(name string) Level {
	return Level{Kind: LevelSeasonal, Season: name}
}

func (l Level) String() string {
	switch l.Kind {
	case LevelMonthly:
		return "monthly"
	case LevelAnnual:
		return "annual"
	case LevelSeasonal:
		return l.Season
	default:
		return fmt.Sprintf("level(%d)", int(l.Kind))
	}
}

// MarshalText encodes the level as "annual", "monthly" or the season name.
func (l Level) MarshalText() ([]byte, error) {
	if l.Kind == LevelSeasonal && l.Season == "" {
		return nil, fmt.Errorf("seasonal level without a season name")
	}
	return []byte(l.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel parses "annual", "monthly" or a season name.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return Level{}, fmt.Errorf("empty level")
	case "annual":
		return Annual, nil
	case "monthly":
		return Monthly, nil
	default:
		return SeasonLevel(s), nil
	}
}

// Season is a named set of calendar months. Months are listed in chronological
// order, so a season that crosses New Year starts with its December (or earlier) months.
type Season struct {
	Name   string       `yaml:"name"`
	Months []time.Month `yaml:"months"`
}

// DefaultSeasons returns the four BMD seasons.
func DefaultSeasons() []Season {
	return []Season{
		{Name: "Winter", Months: []time.Month{time.December, time.January, time.February}},
		{Name: "Pre-monsoon", Months: []time.Month{time.March, time.April, time.May}},
		{Name: "Monsoon", Months: []time.Month{time.June, time.July, time.August, time.September}},
		{Name: "Post-monsoon", Months: []time.Month{time.October, time.November}},
	}
}

// Contains reports whether m belongs to the season.
func (s Season) Contains(m time.Month) bool {
	for _, sm := range s.Months {
		if sm == m {
			return true
		}
	}
	return false
}

// Wraps reports whether the season crosses New Year.
func (s Season) Wraps() bool {
	for i := 1; i < len(s.Months); i++ {
		if s.Months[i] < s.Months[i-1] {
			return true
		}
	}
	return false
}

// SeasonYearRule decides which year a season that crosses New Year is
// counted in.
type SeasonYearRule string

const (
	// SeasonYearCalendar groups a season's months by calendar year, so
	// Winter 1990 is January, February and December 1990.
	SeasonYearCalendar SeasonYearRule = "calendar"
	// SeasonYearFollowing moves the months before New Year into the next
	// season-year, so December 1989 is part of Winter 1990.
	SeasonYearFollowing SeasonYearRule = "following"
)

// ParseSeasonYearRule validates a rule name.
func ParseSeasonYearRule(s string) (SeasonYearRule, error) {
	switch SeasonYearRule(s) {
	case SeasonYearCalendar, SeasonYearFollowing:
		return SeasonYearRule(s), nil
	default:
		return "", fmt.Errorf("unknown season-year rule %q (want %q or %q)", s, SeasonYearCalendar, SeasonYearFollowing)
	}
}

// SeasonYear returns the season-year a month belongs to under rule.
func (s Season) SeasonYear(year int, m time.Month, rule SeasonYearRule) int {
	if rule == SeasonYearFollowing && s.Wraps() && m >= s.Months[0] {
		return year + 1
	}
	return year
}

// MonthYear is the inverse of SeasonYear: the calendar year in which month m
// of the given season-year falls.
func (s Season) MonthYear(seasonYear int, m time.Month, rule SeasonYearRule) int {
	if rule == SeasonYearFollowing && s.Wraps() && m >= s.Months[0] {
		return seasonYear - 1
	}
	return seasonYear
}

// MonthRange renders the season span, e.g. "Dec-Feb".
func (s Season) MonthRange() string {
	if len(s.Months) == 0 {
		return ""
	}
	first := s.Months[0].String()[:3]
	last := s.Months[len(s.Months)-1].String()[:3]
	if first == last {
		return first
	}
	return first + "-" + last
}

// Validate checks that the season has a name and distinct, valid months.
func (s Season) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("season name cannot be empty")
	}
	if len(s.Months) == 0 {
		return fmt.Errorf("season %q has no months", s.Name)
	}
	seen := make(map[time.Month]bool, len(s.Months))
	wraps := 0
	for i, m := range s.Months {
		if m < time.January || m > time.December {
			return fmt.Errorf("season %q: invalid month %d", s.Name, int(m))
		}
		if seen[m] {
			return fmt.Errorf("season %q: month %s listed twice", s.Name, m)
		}
		seen[m] = true
		if i > 0 && m < s.Months[i-1] {
			wraps++
		}
	}
	if wraps > 1 {
		return fmt.Errorf("season %q: months must be chronological", s.Name)
	}
	switch strings.ToLower(s.Name) {
	case "annual", "monthly":
		return fmt.Errorf("season name %q is reserved", s.Name)
	}
	return nil
}
