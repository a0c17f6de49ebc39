package render

import (
	"bytes"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/observability"
	"github.com/couchcryptid/rainfall-trend-etl/internal/spatial"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBoundary(t *testing.T) *spatial.Boundary {
	t.Helper()
	ring := orb.Ring{{88, 21}, {92.5, 21}, {92.5, 26.5}, {88, 26.5}, {88, 21}}
	b, err := spatial.NewBoundary("test.geojson", orb.MultiPolygon{{ring}})
	require.NoError(t, err)
	return b
}

func testResults(level domain.Level) []domain.TrendResult {
	return []domain.TrendResult{
		{StationID: "DHK", StationName: "Dhaka", Level: level, Geo: domain.Geo{Lat: 23.78, Lon: 90.38}, SenSlope: 4.2, Significant: true, Direction: domain.Increasing},
		{StationID: "CTG", StationName: "Chittagong", Level: level, Geo: domain.Geo{Lat: 22.27, Lon: 91.82}, SenSlope: -6.1, Direction: domain.Decreasing},
		{StationID: "RAJ", StationName: "Rajshahi", Level: level, Geo: domain.Geo{Lat: 24.37, Lon: 88.7}, SenSlope: -1.5, Direction: domain.Decreasing},
		{StationID: "SYL", StationName: "Sylhet", Level: level, Geo: domain.Geo{Lat: 24.9, Lon: 91.88}, SenSlope: 2.0, Direction: domain.Increasing},
	}
}

func annualSeries(id string, start, n int) domain.Series {
	s := domain.Series{StationID: id, Level: domain.Annual}
	for i := range n {
		s.Points = append(s.Points, domain.PeriodTotal{
			Period:   domain.Period{Year: start + i},
			Total:    2000 + 15*float64(i) + 40*math.Sin(float64(i)),
			Coverage: 1,
		})
	}
	return s
}

func monthlySeries(id string, start, years int) domain.Series {
	s := domain.Series{StationID: id, Level: domain.Monthly}
	for y := range years {
		for m := time.January; m <= time.December; m++ {
			s.Points = append(s.Points, domain.PeriodTotal{
				Period:   domain.Period{Year: start + y, Month: m},
				Total:    100 + 300*math.Sin(math.Pi*float64(m-1)/11),
				Coverage: 1,
			})
		}
	}
	return s
}

func TestPointMap_WritesPNG(t *testing.T) {
	var buf bytes.Buffer
	err := PointMap(&buf, testResults(domain.Annual), testBoundary(t), MapOptions{Title: "Annual"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestPointMap_WithoutBoundary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PointMap(&buf, testResults(domain.Annual), nil, MapOptions{Title: "Annual", VMax: 10}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestPointMap_NothingToMap(t *testing.T) {
	// One without coordinates, one without a slope.
	results := []domain.TrendResult{
		{StationID: "X", SenSlope: 1},
		{StationID: "Y", Geo: domain.Geo{Lat: 23, Lon: 90}, SenSlope: math.NaN()},
	}
	var buf bytes.Buffer
	err := PointMap(&buf, results, nil, MapOptions{})
	require.ErrorIs(t, err, ErrNothingToMap)
	assert.Zero(t, buf.Len())
}

func TestPointMap_StationsOutsideBoundary(t *testing.T) {
	results := []domain.TrendResult{
		{StationID: "A", Geo: domain.Geo{Lat: 15, Lon: 80}, SenSlope: 1},
		{StationID: "B", Geo: domain.Geo{Lat: 16, Lon: 81}, SenSlope: -2},
	}
	var buf bytes.Buffer
	err := PointMap(&buf, results, testBoundary(t), MapOptions{Title: "Annual"})
	require.ErrorIs(t, err, ErrNothingToMap)
	assert.Zero(t, buf.Len())

	// Without an outline nothing is clipped.
	require.NoError(t, PointMap(&buf, results, nil, MapOptions{Title: "Annual"}))
}

func TestMappable_ClipsToBoundary(t *testing.T) {
	results := append(testResults(domain.Annual),
		domain.TrendResult{StationID: "OFF", Geo: domain.Geo{Lat: 15, Lon: 80}, SenSlope: 9})

	var ids []string
	for _, r := range mappable(results, testBoundary(t)) {
		ids = append(ids, r.StationID)
	}
	assert.Equal(t, []string{"DHK", "CTG", "RAJ", "SYL"}, ids)
	assert.Len(t, mappable(results, nil), 5)
}

func TestIDWMap_WritesPNG(t *testing.T) {
	b := testBoundary(t)
	results := testResults(domain.Annual)
	grid, err := spatial.TrendSurface(results, b, spatial.IDWOptions{Power: 2, Radius: 150_000, Resolution: 10_000})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, IDWMap(&buf, grid, b, results, MapOptions{Title: "IDW"}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestIDWMap_EmptyGrid(t *testing.T) {
	nan := math.NaN()
	grid := &spatial.Grid{
		Xs: []float64{0, 1}, Ys: []float64{0, 1},
		Lon: []float64{90, 90.1}, Lat: []float64{23, 23.1},
		Z: [][]float64{{nan, nan}, {nan, nan}},
	}
	err := IDWMap(io.Discard, grid, nil, nil, MapOptions{})
	assert.Error(t, err)
}

func TestAnnualChart_WritesPNG(t *testing.T) {
	res := domain.TrendResult{
		StationName: "Dhaka", Level: domain.Annual,
		SenSlope: 15, SenIntercept: 2000 - 15*1990, LinearSlope: 14.8, Mean: 2150,
		Tau: 0.8, PValue: 0.001, Significant: true, Direction: domain.Increasing,
	}
	var buf bytes.Buffer
	require.NoError(t, AnnualChart(&buf, annualSeries("DHK", 1990, 20), res))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))

	assert.Error(t, AnnualChart(io.Discard, domain.Series{}, res))
}

func TestMonthlyChart(t *testing.T) {
	monthly := monthlySeries("DHK", 2000, 3)
	rolling := make([]float64, monthly.Len())
	for i := range rolling {
		rolling[i] = math.NaN()
		if i >= 5 {
			rolling[i] = 250
		}
	}

	var buf bytes.Buffer
	require.NoError(t, MonthlyChart(&buf, monthly, rolling, "Dhaka"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))

	err := MonthlyChart(io.Discard, monthly, rolling[:3], "Dhaka")
	assert.ErrorContains(t, err, "rolling mean has 3 values")
}

func TestSegments_BreakAtGapsAndNaN(t *testing.T) {
	s := domain.Series{Points: []domain.PeriodTotal{
		{Period: domain.Period{Year: 2000, Month: time.November}},
		{Period: domain.Period{Year: 2000, Month: time.December}},
		{Period: domain.Period{Year: 2001, Month: time.January}},
		// February missing
		{Period: domain.Period{Year: 2001, Month: time.March}},
		{Period: domain.Period{Year: 2001, Month: time.April}},
		{Period: domain.Period{Year: 2001, Month: time.May}},
	}}
	values := []float64{1, 2, 3, 4, math.NaN(), 6}

	segs := segments(s, values)
	require.Len(t, segs, 3)
	assert.Len(t, segs[0], 3, "runs across the year boundary")
	assert.Len(t, segs[1], 1)
	assert.Len(t, segs[2], 1)
	assert.Equal(t, 6.0, segs[2][0].Y)
}

func TestSymmetricMax(t *testing.T) {
	a := []domain.TrendResult{{SenSlope: 1.5}, {SenSlope: -4}}
	b := []domain.TrendResult{{SenSlope: 3}, {SenSlope: math.NaN()}, {SenSlope: math.Inf(1)}}
	assert.Equal(t, 4.0, SymmetricMax(a, b))
	assert.Zero(t, SymmetricMax())
}

func TestColorAt_Clamps(t *testing.T) {
	cm := divergingMap(5)
	assert.Equal(t, -5.0, cm.Min())
	assert.Equal(t, 5.0, cm.Max())

	hi, err := cm.At(5)
	require.NoError(t, err)
	assert.Equal(t, hi, colorAt(cm, 50))

	lo, err := cm.At(-5)
	require.NoError(t, err)
	assert.Equal(t, lo, colorAt(cm, -50))

	assert.Zero(t, cm.ConvergePoint())

	assert.Equal(t, missingColor, colorAt(cm, math.NaN()))
	assert.Equal(t, 1.0, divergingMap(0).Max(), "degenerate range falls back to unit width")
}

func TestFileSafe(t *testing.T) {
	assert.Equal(t, "Cox_s_Bazar", FileSafe("Cox's Bazar"))
	assert.Equal(t, "Pre-monsoon", FileSafe("Pre-monsoon"))
	assert.Equal(t, "M.Court", FileSafe(" M.Court "))
	assert.Equal(t, "Dry_season", FileSafe("Dry season/"))
}

func TestRenderer_Render(t *testing.T) {
	dir := t.TempDir()
	metrics := observability.NewMetricsForTesting()
	seasons := []domain.Season{
		{Name: "Monsoon", Months: []time.Month{time.June, time.July, time.August, time.September}},
		{Name: "Winter", Months: []time.Month{time.December, time.January, time.February}},
	}

	report := &domain.Report{
		Stations: []domain.Station{{ID: "DHK", Name: "Dhaka", Geo: domain.Geo{Lat: 23.78, Lon: 90.38}}},
		Monthly:  []domain.Series{monthlySeries("DHK", 2000, 2)},
		Annual:   []domain.Series{annualSeries("DHK", 1990, 20)},
	}
	report.Results = append(testResults(domain.Annual), testResults(domain.SeasonLevel("Monsoon"))...)

	r := NewRenderer(dir, Options{
		IDW:        spatial.IDWOptions{Power: 2, Radius: 150_000, Resolution: 10_000},
		Seasons:    seasons,
		TimeSeries: true,
	}, metrics, discardLogger())

	written, err := r.Render(report, testBoundary(t))

	// Winter has no results, so its map fails and the rest still render.
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNothingToMap)
	assert.Contains(t, err.Error(), "Rainfall_Trend_Map_Winter.png")

	assert.Equal(t, []string{
		"Rainfall_Trend_Map_Annual.png",
		"Rainfall_Trend_Map_Monsoon.png",
		"Rainfall_Trend_IDW_Masked.png",
		"Dhaka_annual_timeseries.png",
		"Dhaka_monthly_timeseries.png",
	}, written)
	for _, name := range written {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, pngMagic), name)
	}
	_, statErr := os.Stat(filepath.Join(dir, "Rainfall_Trend_Map_Winter.png"))
	assert.True(t, os.IsNotExist(statErr), "failed image is removed")

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.MapsRendered))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RenderErrors.WithLabelValues(ArtifactPoint)))
}

func TestRenderer_NoBoundarySkipsIDW(t *testing.T) {
	dir := t.TempDir()
	report := &domain.Report{Results: testResults(domain.Annual)}
	r := NewRenderer(dir, Options{IDW: spatial.IDWOptions{Power: 2, Resolution: 10_000}}, observability.NewMetricsForTesting(), discardLogger())

	written, err := r.Render(report, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rainfall_Trend_Map_Annual.png"}, written)
}
