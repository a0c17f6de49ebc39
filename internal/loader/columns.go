package loader

import (
	"fmt"
	"strings"
)

// Column aliases, already normalized.
var (
	stationAliases = []string{"station", "station_id", "id", "code"}
	nameAliases    = []string{"name", "station_name"}
	dateAliases    = []string{"date", "datetime"}
	amountAliases  = []string{"rainfall", "rain", "amount", "precipitation", "rainfall_mm", "precip"}
	latAliases     = []string{"latitude", "lat"}
	lonAliases     = []string{"longitude", "lon", "long", "lng"}
	yearAliases    = []string{"year"}
	monthAliases   = []string{"month"}
	dayAliases     = []string{"day"}
)

// normalizeColumn lowercases a header cell, drops a trailing unit in
// parentheses and joins words with underscores: "Rainfall (mm)" -> "rainfall".
func normalizeColumn(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(s)
	return strings.Join(strings.Fields(s), "_")
}

// header maps normalized column names to their index.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, c := range row {
		name := normalizeColumn(c)
		if _, dup := h[name]; !dup && name != "" {
			h[name] = i
		}
	}
	return h
}

// find returns the index of the first alias present, or -1.
func (h header) find(aliases []string) int {
	for _, a := range aliases {
		if i, ok := h[a]; ok {
			return i
		}
	}
	return -1
}

// dateColumns locates either a single date column or separate year, month and
// day columns.
type dateColumns struct {
	date, year, month, day int
}

func (h header) dateColumns() (dateColumns, error) {
	dc := dateColumns{
		date:  h.find(dateAliases),
		year:  h.find(yearAliases),
		month: h.find(monthAliases),
		day:   h.find(dayAliases),
	}
	if dc.date >= 0 {
		return dc, nil
	}
	if dc.year >= 0 && dc.month >= 0 && dc.day >= 0 {
		return dc, nil
	}
	return dc, fmt.Errorf("missing date column (want %q or year, month and day)", dateAliases[0])
}

func (h header) amountColumn() (int, error) {
	i := h.find(amountAliases)
	if i < 0 {
		return -1, fmt.Errorf("missing rainfall column (want one of %s)", strings.Join(amountAliases[:4], ", "))
	}
	return i, nil
}

// cell returns row[i] or "" when the row is short.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
