package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// Analysis holds the statistical and spatial constants of a run. It is read
// once at startup and passed to each stage explicitly.
type Analysis struct {
	SignificanceLevel float64              `yaml:"significance_level"`
	MinPeriods        int                  `yaml:"min_periods"`
	MissingPolicy     domain.MissingPolicy `yaml:"missing_policy"`
	StartYear         int                  `yaml:"start_year"`
	EndYear           int                  `yaml:"end_year"`
	Seasons           []domain.Season      `yaml:"seasons"`

	// SeasonYear decides which year a season crossing New Year is counted in.
	SeasonYear domain.SeasonYearRule `yaml:"season_year"`

	IDWPower       float64 `yaml:"idw_power"`
	SearchRadius   float64 `yaml:"search_radius_m"`   // 0 uses every station
	GridResolution float64 `yaml:"grid_resolution_m"` // projected metres per cell

	// Country restricts forward geocoding (ISO 3166 alpha-2).
	Country string `yaml:"country"`
}

// DefaultAnalysis returns the settings used for the BMD 1989-2023 study.
func DefaultAnalysis() Analysis {
	return Analysis{
		SignificanceLevel: 0.05,
		MinPeriods:        10,
		MissingPolicy:     domain.PolicyExclude,
		StartYear:         1989,
		EndYear:           2023,
		Seasons:           domain.DefaultSeasons(),
		SeasonYear:        domain.SeasonYearCalendar,
		IDWPower:          2,
		SearchRadius:      150_000,
		GridResolution:    3_000,
		Country:           "bd",
	}
}

// LoadAnalysis applies, in order, the defaults, the YAML file named by
// ANALYSIS_CONFIG (if set), and the individual environment overrides, then
// validates the result.
func LoadAnalysis() (Analysis, error) {
	a := DefaultAnalysis()

	if path := os.Getenv("ANALYSIS_CONFIG"); path != "" {
		if err := hydrateFromFile(&a, path); err != nil {
			return Analysis{}, err
		}
	}
	if err := applyAnalysisEnv(&a); err != nil {
		return Analysis{}, err
	}
	if err := a.Validate(); err != nil {
		return Analysis{}, fmt.Errorf("invalid analysis config: %w", err)
	}
	return a, nil
}

func hydrateFromFile(a *Analysis, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read analysis config: %w", err)
	}
	if err := yaml.Unmarshal(data, a); err != nil {
		return fmt.Errorf("parse analysis config %s: %w", path, err)
	}
	return nil
}

func applyAnalysisEnv(a *Analysis) error {
	var err error
	if a.SignificanceLevel, err = envFloat("SIGNIFICANCE_LEVEL", a.SignificanceLevel); err != nil {
		return err
	}
	if a.IDWPower, err = envFloat("IDW_POWER", a.IDWPower); err != nil {
		return err
	}
	if a.SearchRadius, err = envFloat("IDW_SEARCH_RADIUS", a.SearchRadius); err != nil {
		return err
	}
	if a.GridResolution, err = envFloat("GRID_RESOLUTION", a.GridResolution); err != nil {
		return err
	}
	if a.MinPeriods, err = envInt("MIN_PERIODS", a.MinPeriods); err != nil {
		return err
	}
	if a.StartYear, err = envInt("START_YEAR", a.StartYear); err != nil {
		return err
	}
	if a.EndYear, err = envInt("END_YEAR", a.EndYear); err != nil {
		return err
	}
	if v := os.Getenv("MISSING_POLICY"); v != "" {
		policy, err := domain.ParseMissingPolicy(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("invalid MISSING_POLICY: %w", err)
		}
		a.MissingPolicy = policy
	}
	if v := os.Getenv("SEASON_YEAR"); v != "" {
		rule, err := domain.ParseSeasonYearRule(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("invalid SEASON_YEAR: %w", err)
		}
		a.SeasonYear = rule
	}
	return nil
}

// Validate checks every constant for a usable value.
func (a Analysis) Validate() error {
	if a.SignificanceLevel <= 0 || a.SignificanceLevel >= 1 {
		return fmt.Errorf("significance level must be in (0, 1), got %v", a.SignificanceLevel)
	}
	if a.MinPeriods < 4 {
		return fmt.Errorf("min periods must be at least 4, got %d", a.MinPeriods)
	}
	if _, err := domain.ParseMissingPolicy(string(a.MissingPolicy)); err != nil {
		return err
	}
	if _, err := domain.ParseSeasonYearRule(string(a.SeasonYear)); err != nil {
		return err
	}
	if a.StartYear > a.EndYear {
		return fmt.Errorf("start year %d is after end year %d", a.StartYear, a.EndYear)
	}
	if a.IDWPower <= 0 {
		return fmt.Errorf("IDW power must be positive, got %v", a.IDWPower)
	}
	if a.SearchRadius < 0 {
		return fmt.Errorf("search radius cannot be negative, got %v", a.SearchRadius)
	}
	if a.GridResolution <= 0 {
		return fmt.Errorf("grid resolution must be positive, got %v", a.GridResolution)
	}
	if len(a.Seasons) == 0 {
		return errors.New("at least one season is required")
	}
	names := make(map[string]bool, len(a.Seasons))
	for _, s := range a.Seasons {
		if err := s.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(s.Name)
		if names[key] {
			return fmt.Errorf("season %q defined twice", s.Name)
		}
		names[key] = true
	}
	return nil
}

// Season returns the named season.
func (a Analysis) Season(name string) (domain.Season, bool) {
	for _, s := range a.Seasons {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return domain.Season{}, false
}

// Summary returns the settings recorded with each run.
func (a Analysis) Summary() domain.AnalysisSummary {
	seasons := make([]string, len(a.Seasons))
	for i, s := range a.Seasons {
		seasons[i] = s.Name
	}
	return domain.AnalysisSummary{
		SignificanceLevel: a.SignificanceLevel,
		MinPeriods:        a.MinPeriods,
		MissingPolicy:     a.MissingPolicy,
		StartYear:         a.StartYear,
		EndYear:           a.EndYear,
		IDWPower:          a.IDWPower,
		Seasons:           seasons,
		SeasonYear:        a.SeasonYear,
	}
}

func envFloat(name string, def float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return f, nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}
