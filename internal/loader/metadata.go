package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// metaRow is one parsed metadata row, or the reason it was rejected.
type metaRow struct {
	meta domain.StationMeta
	err  error
}

// ReadMetadata parses a station metadata table with a station (or id) column,
// an optional name column and latitude/longitude columns. Rows with blank
// coordinates are kept with a zero Geo. The returned map holds per-station
// errors for rows that were rejected; a structural problem such as a missing
// column fails the whole table.
func ReadMetadata(data []byte, file string) ([]domain.StationMeta, map[string]error, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	first, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, &domain.DataError{File: file, Err: errors.New("empty metadata table")}
		}
		return nil, nil, &domain.DataError{File: file, Err: err}
	}
	h := newHeader(first)

	idCol := h.find(stationAliases)
	nameCol := h.find(nameAliases)
	if idCol < 0 {
		idCol = nameCol
	}
	if idCol < 0 {
		return nil, nil, &domain.DataError{File: file, Err: errors.New("missing station column")}
	}
	latCol, lonCol := h.find(latAliases), h.find(lonAliases)
	if latCol < 0 || lonCol < 0 {
		return nil, nil, &domain.DataError{File: file, Err: errors.New("missing latitude/longitude columns")}
	}

	var (
		rows  []metaRow
		index = make(map[string]int)
	)
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &domain.DataError{File: file, Line: line, Err: err}
		}
		id := strings.TrimSpace(cell(rec, idCol))
		if id == "" {
			continue
		}
		meta := domain.StationMeta{ID: id, Name: id}
		if nameCol >= 0 {
			if n := strings.TrimSpace(cell(rec, nameCol)); n != "" {
				meta.Name = n
			}
		}

		key := domain.StationKey(id)
		if _, dup := index[key]; dup {
			rows[index[key]].err = &domain.DataError{Station: id, File: file, Line: line, Err: errors.New("station listed twice")}
			continue
		}
		index[key] = len(rows)

		geo, err := parseGeo(cell(rec, latCol), cell(rec, lonCol))
		if err != nil {
			rows = append(rows, metaRow{meta: meta, err: &domain.DataError{Station: id, File: file, Line: line, Err: err}})
			continue
		}
		meta.Geo = geo
		rows = append(rows, metaRow{meta: meta})
	}

	var (
		metas  []domain.StationMeta
		failed map[string]error
	)
	for _, row := range rows {
		if row.err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[row.meta.ID] = row.err
			continue
		}
		metas = append(metas, row.meta)
	}
	return metas, failed, nil
}

func parseGeo(latCell, lonCell string) (domain.Geo, error) {
	lat, okLat, err := domain.ParseCoordinate(latCell)
	if err != nil {
		return domain.Geo{}, err
	}
	lon, okLon, err := domain.ParseCoordinate(lonCell)
	if err != nil {
		return domain.Geo{}, err
	}
	if !okLat || !okLon {
		return domain.Geo{}, nil
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return domain.Geo{}, fmt.Errorf("coordinates out of range: %v, %v", lat, lon)
	}
	return domain.Geo{Lat: lat, Lon: lon}, nil
}
