// Package loader reads the station metadata table and daily rainfall records
// into per-station ordered series.
package loader

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// Result is the outcome of a load: the stations that can be analysed, in ID
// order, and the stations that were left out with the reason.
type Result struct {
	Stations   []domain.Station
	Exclusions []domain.Exclusion
}

// Loader reads station inputs from the local filesystem.
type Loader struct {
	logger *slog.Logger
}

// New creates a Loader.
func New(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadStations reads the metadata table at metaPath and the daily records at
// dailyPath, which is either a directory of <station>.csv files or a single
// combined CSV with a station column. Problems confined to one station
// exclude that station; unreadable inputs or missing columns in a shared file
// fail the load.
func (l *Loader) LoadStations(metaPath, dailyPath string) (*Result, error) {
	metaData, err := readText(metaPath)
	if err != nil {
		return nil, &domain.DataError{File: metaPath, Err: err}
	}
	metas, metaFailed, err := ReadMetadata(metaData, filepath.Base(metaPath))
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dailyPath)
	if err != nil {
		return nil, &domain.DataError{File: dailyPath, Err: err}
	}
	var (
		daily       map[string][]domain.Observation
		dailyFailed map[string]error
	)
	if info.IsDir() {
		daily, dailyFailed, err = l.readDir(dailyPath, metaPath)
	} else {
		var data []byte
		if data, err = readText(dailyPath); err != nil {
			return nil, &domain.DataError{File: dailyPath, Err: err}
		}
		daily, dailyFailed, err = ReadCombined(data, filepath.Base(dailyPath))
	}
	if err != nil {
		return nil, err
	}

	res := merge(metas, metaFailed, daily, dailyFailed)
	for _, ex := range res.Exclusions {
		l.logger.Warn("station excluded", "station", ex.StationID, "stage", ex.Stage, "error", ex.Reason)
	}
	for _, st := range res.Stations {
		if st.GeoSource == domain.GeoSourceMissing {
			l.logger.Warn("station has no coordinates", "station", st.ID)
		}
	}
	l.logger.Info("stations loaded",
		"stations", len(res.Stations),
		"excluded", len(res.Exclusions),
	)
	return res, nil
}

func (l *Loader) readDir(dir, metaPath string) (map[string][]domain.Observation, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, &domain.DataError{File: dir, Err: err}
	}
	metaAbs, _ := filepath.Abs(metaPath)

	daily := make(map[string][]domain.Observation)
	failed := make(map[string]error)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if abs, _ := filepath.Abs(path); abs == metaAbs {
			continue
		}
		station := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))

		data, err := readText(path)
		if err != nil {
			failed[station] = &domain.DataError{Station: station, File: e.Name(), Err: err}
			continue
		}
		obs, err := ReadDaily(data, e.Name(), station)
		if err != nil {
			failed[station] = err
			continue
		}
		daily[station] = obs
	}
	if len(daily) == 0 && len(failed) == 0 {
		return nil, nil, &domain.DataError{File: dir, Err: errors.New("no daily CSV files")}
	}
	return daily, failed, nil
}

// merge joins metadata rows and daily series by normalized station key.
func merge(metas []domain.StationMeta, metaFailed map[string]error, daily map[string][]domain.Observation, dailyFailed map[string]error) *Result {
	res := &Result{}
	exclude := func(id string, err error) {
		res.Exclusions = append(res.Exclusions, domain.NewExclusion(id, "", domain.StageLoad, err))
	}

	dailyByKey := make(map[string]string, len(daily))
	for id := range daily {
		dailyByKey[domain.StationKey(id)] = id
	}
	dailyFailedByKey := make(map[string]error, len(dailyFailed))
	for id, err := range dailyFailed {
		dailyFailedByKey[domain.StationKey(id)] = err
	}

	claimed := make(map[string]bool)
	for id, err := range metaFailed {
		claimed[domain.StationKey(id)] = true
		exclude(id, err)
	}
	for _, m := range metas {
		key := domain.StationKey(m.ID)
		claimed[key] = true
		if err, ok := dailyFailedByKey[key]; ok {
			exclude(m.ID, err)
			continue
		}
		dailyID, ok := dailyByKey[key]
		if !ok {
			exclude(m.ID, &domain.DataError{Station: m.ID, Err: errors.New("no daily records")})
			continue
		}
		res.Stations = append(res.Stations, newStation(m.ID, m.Name, m.Geo, daily[dailyID]))
	}

	for id, obs := range daily {
		if claimed[domain.StationKey(id)] {
			continue
		}
		res.Stations = append(res.Stations, newStation(id, id, domain.Geo{}, obs))
	}
	for id, err := range dailyFailed {
		if claimed[domain.StationKey(id)] {
			continue
		}
		exclude(id, err)
	}

	slices.SortFunc(res.Stations, func(a, b domain.Station) int {
		return strings.Compare(domain.StationKey(a.ID), domain.StationKey(b.ID))
	})
	slices.SortFunc(res.Exclusions, func(a, b domain.Exclusion) int {
		return strings.Compare(domain.StationKey(a.StationID), domain.StationKey(b.StationID))
	})
	return res
}

func newStation(id, name string, geo domain.Geo, obs []domain.Observation) domain.Station {
	st := domain.Station{
		ID:           id,
		Name:         name,
		Geo:          geo,
		GeoSource:    domain.GeoSourceMetadata,
		Observations: obs,
	}
	if geo.IsZero() {
		st.GeoSource = domain.GeoSourceMissing
	}
	return st
}
