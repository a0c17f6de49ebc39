package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// ReadDaily parses a single station's daily file. Any malformed row fails the
// file with a DataError naming the line.
func ReadDaily(data []byte, file, station string) ([]domain.Observation, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	first, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &domain.DataError{Station: station, File: file, Err: errors.New("empty file")}
		}
		return nil, &domain.DataError{Station: station, File: file, Err: err}
	}
	h := newHeader(first)
	dc, err := h.dateColumns()
	if err != nil {
		return nil, &domain.DataError{Station: station, File: file, Err: err}
	}
	amountCol, err := h.amountColumn()
	if err != nil {
		return nil, &domain.DataError{Station: station, File: file, Err: err}
	}

	var obs []domain.Observation
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.DataError{Station: station, File: file, Line: line, Err: err}
		}
		if blankRow(rec) {
			continue
		}
		o, err := parseObservation(rec, dc, amountCol)
		if err != nil {
			return nil, &domain.DataError{Station: station, File: file, Line: line, Err: err}
		}
		obs = append(obs, o)
	}
	return sortObservations(obs, station, file)
}

// combined accumulates the rows of one station in a combined file.
type combined struct {
	name string // first spelling seen
	obs  []domain.Observation
	err  error
}

// ReadCombined parses one CSV holding every station, keyed by a station
// column. A malformed row fails only its station; the returned errors map
// holds those failures by station ID. Missing columns fail the whole file.
func ReadCombined(data []byte, file string) (map[string][]domain.Observation, map[string]error, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	first, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, &domain.DataError{File: file, Err: errors.New("empty file")}
		}
		return nil, nil, &domain.DataError{File: file, Err: err}
	}
	h := newHeader(first)
	stationCol := h.find(stationAliases)
	if stationCol < 0 {
		stationCol = h.find(nameAliases)
	}
	if stationCol < 0 {
		return nil, nil, &domain.DataError{File: file, Err: errors.New("missing station column")}
	}
	dc, err := h.dateColumns()
	if err != nil {
		return nil, nil, &domain.DataError{File: file, Err: err}
	}
	amountCol, err := h.amountColumn()
	if err != nil {
		return nil, nil, &domain.DataError{File: file, Err: err}
	}

	byKey := make(map[string]*combined)
	var order []string
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &domain.DataError{File: file, Line: line, Err: err}
		}
		if blankRow(rec) {
			continue
		}
		id := strings.TrimSpace(cell(rec, stationCol))
		if id == "" {
			return nil, nil, &domain.DataError{File: file, Line: line, Err: errors.New("row without station")}
		}
		key := domain.StationKey(id)
		c, ok := byKey[key]
		if !ok {
			c = &combined{name: id}
			byKey[key] = c
			order = append(order, key)
		}
		if c.err != nil {
			continue
		}
		o, err := parseObservation(rec, dc, amountCol)
		if err != nil {
			c.err = &domain.DataError{Station: c.name, File: file, Line: line, Err: err}
			continue
		}
		c.obs = append(c.obs, o)
	}

	out := make(map[string][]domain.Observation, len(order))
	var failed map[string]error
	for _, key := range order {
		c := byKey[key]
		if c.err == nil {
			c.obs, c.err = sortObservations(c.obs, c.name, file)
		}
		if c.err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[c.name] = c.err
			continue
		}
		out[c.name] = c.obs
	}
	return out, failed, nil
}

func parseObservation(rec []string, dc dateColumns, amountCol int) (domain.Observation, error) {
	var (
		date time.Time
		err  error
	)
	if dc.date >= 0 {
		date, err = domain.ParseDate(cell(rec, dc.date))
	} else {
		date, err = domain.DateFromParts(cell(rec, dc.year), cell(rec, dc.month), cell(rec, dc.day))
	}
	if err != nil {
		return domain.Observation{}, err
	}
	amount, missing, err := domain.ParseAmount(cell(rec, amountCol))
	if err != nil {
		return domain.Observation{}, err
	}
	return domain.Observation{Date: date, Amount: amount, Missing: missing}, nil
}

// sortObservations orders observations by date and rejects duplicate days.
func sortObservations(obs []domain.Observation, station, file string) ([]domain.Observation, error) {
	slices.SortStableFunc(obs, func(a, b domain.Observation) int {
		return a.Date.Compare(b.Date)
	})
	for i := 1; i < len(obs); i++ {
		if obs[i].Date.Equal(obs[i-1].Date) {
			return nil, &domain.DataError{
				Station: station,
				File:    file,
				Err:     fmt.Errorf("duplicate date %s", obs[i].Date.Format(time.DateOnly)),
			}
		}
	}
	return obs, nil
}

func blankRow(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
