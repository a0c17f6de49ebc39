package report

import (
	"bytes"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testReport() *domain.Report {
	monsoon := domain.SeasonLevel("Monsoon")
	return &domain.Report{
		Stations: []domain.Station{
			{ID: "11111", Name: "Dhaka", Geo: domain.Geo{Lat: 23.78, Lon: 90.38}},
			{ID: "22222", Name: "Cox's Bazar"},
		},
		Monthly: []domain.Series{{StationID: "11111", Level: domain.Monthly, Points: []domain.PeriodTotal{
			{Period: domain.Period{Year: 2000, Month: time.January}, Total: 7.5, Coverage: 1},
			{Period: domain.Period{Year: 2000, Month: time.February}, Total: 12.25, Coverage: 0.5, Flagged: true},
		}}},
		Annual: []domain.Series{{StationID: "11111", Level: domain.Annual, Points: []domain.PeriodTotal{
			{Period: domain.Period{Year: 2000}, Total: 2100.4, Coverage: 1},
			{Period: domain.Period{Year: 2001}, Total: 1987, Coverage: 1},
		}}},
		Seasonal: []domain.Series{{StationID: "11111", Level: monsoon, Points: []domain.PeriodTotal{
			{Period: domain.Period{Year: 2000, Season: "Monsoon"}, Total: 1500, Coverage: 1},
		}}},
		Results: []domain.TrendResult{
			{
				StationID: "11111", StationName: "Dhaka", Level: domain.Annual, Geo: domain.Geo{Lat: 23.78, Lon: 90.38},
				N: 35, StartYear: 1989, EndYear: 2023,
				S: 120, VarS: 4958.33, Z: 1.69, Tau: 0.2, PValue: 0.09, Direction: domain.Increasing,
				SenSlope: 5.5, SenIntercept: -8000, LinearSlope: 6, LinearPValue: math.NaN(), Mean: 2100,
			},
			{
				StationID: "22222", StationName: "Cox's Bazar", Level: monsoon,
				N: 30, StartYear: 1990, EndYear: 2019,
				S: -200, VarS: 3141.67, Z: -3.55, Tau: -0.46, PValue: 0.0004, Significant: true, Direction: domain.Decreasing,
				SenSlope: -12, SenIntercept: 26000, LinearSlope: -11, LinearPValue: 0.001, Mean: 2900, FlaggedPeriods: 2,
			},
		},
		Exclusions: []domain.Exclusion{
			{StationID: "33333", Stage: domain.StageLoad, Kind: domain.KindData, Reason: "missing column"},
			{StationID: "22222", Level: "annual", Stage: domain.StageTrend, Kind: domain.KindInsufficientData, Reason: "insufficient data: 3 periods, need at least 10"},
		},
	}
}

func TestWriter_Write(t *testing.T) {
	dir := t.TempDir()
	written, err := NewWriter(dir, discardLogger()).Write(testReport())
	require.NoError(t, err)
	assert.Equal(t, []string{
		MonthlyFile, AnnualFile, SeasonalFile, StationsFile, SeasonsFile, ExclusionsFile, WorkbookFile,
	}, written)

	monthly, err := os.ReadFile(filepath.Join(dir, MonthlyFile))
	require.NoError(t, err)
	want := "station_id,station,year,month,rainfall_mm,coverage,flagged\n" +
		"11111,Dhaka,2000,1,7.5,1,false\n" +
		"11111,Dhaka,2000,2,12.25,0.5,true\n"
	assert.Equal(t, want, string(monthly))

	stations, err := os.ReadFile(filepath.Join(dir, StationsFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(stations)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "station_id,station,lat,lon,n_years"))
	assert.Contains(t, lines[1], ",no trend,false,increasing,")
	assert.Contains(t, lines[1], ",6,,2100,0", "NaN p-value is an empty cell")

	exclusions, err := os.ReadFile(filepath.Join(dir, ExclusionsFile))
	require.NoError(t, err)
	assert.Contains(t, string(exclusions), "33333,all,load,data,missing column")
}

func TestResults_RoundTrip(t *testing.T) {
	rep := testReport()
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, resultsTable(rep.ResultsAt(domain.Annual), false)))

	got, err := ReadResults(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(rep.ResultsAt(domain.Annual), got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestResults_RoundTripSeasonalWithoutCoordinates(t *testing.T) {
	rep := testReport()
	seasonal := rep.ResultsAt(domain.SeasonLevel("Monsoon"))
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, resultsTable(seasonal, true)))
	assert.Contains(t, buf.String(), "22222,Cox's Bazar,Monsoon,,,30,")

	got, err := ReadResults(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(seasonal, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestReadResults_TrendLabelMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, resultsTable(testReport().ResultsAt(domain.Annual), false)))
	tampered := strings.Replace(buf.String(), ",no trend,false,", ",increasing,false,", 1)

	_, err := ReadResults(strings.NewReader(tampered))
	assert.ErrorContains(t, err, "line 2: trend \"increasing\" disagrees")
}

func TestReadSeries_Levels(t *testing.T) {
	rep := testReport()
	names := map[string]string{"11111": "Dhaka"}

	for _, tc := range []struct {
		kind   domain.LevelKind
		series []domain.Series
	}{
		{domain.LevelMonthly, rep.Monthly},
		{domain.LevelAnnual, rep.Annual},
		{domain.LevelSeasonal, rep.Seasonal},
	} {
		var buf bytes.Buffer
		require.NoError(t, writeCSV(&buf, seriesTable(tc.kind, tc.series, names)))
		got, err := ReadSeries(&buf)
		require.NoError(t, err)
		if diff := cmp.Diff(tc.series, got); diff != "" {
			t.Errorf("level %d mismatch (-want +got):\n%s", tc.kind, diff)
		}
	}
}

func TestReadSeries_Errors(t *testing.T) {
	_, err := ReadSeries(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty table")

	_, err = ReadSeries(strings.NewReader("station_id,year,rainfall_mm\n"))
	assert.ErrorContains(t, err, `missing column "coverage"`)

	_, err = ReadSeries(strings.NewReader("station_id,year,rainfall_mm,coverage,flagged\n1,two thousand,1,1,false\n"))
	assert.ErrorContains(t, err, "line 2: year")
}

func TestReadExclusions(t *testing.T) {
	rep := testReport()
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, exclusionsTable(rep.Exclusions)))

	got, err := ReadExclusions(&buf)
	require.NoError(t, err)
	assert.Equal(t, rep.Exclusions, got)
}

func TestWorkbook_Sheets(t *testing.T) {
	rep := testReport()
	path := filepath.Join(t.TempDir(), WorkbookFile)
	require.NoError(t, writeWorkbook(path,
		resultsTable(rep.ResultsAt(domain.Annual), false),
		exclusionsTable(rep.Exclusions),
	))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Annual", "Exclusions"}, f.GetSheetList())

	rows, err := f.GetRows("Annual")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, stationsHeader, rows[0])
	assert.Equal(t, "Dhaka", rows[1][1])

	// The NaN linear p-value is left blank.
	col := indexOf(stationsHeader, "linear_p_value")
	assert.Equal(t, "", rows[1][col])

	rows, err = f.GetRows("Exclusions")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "", formatCell(math.NaN()))
	assert.Equal(t, "", formatCell(math.Inf(-1)))
	assert.Equal(t, "0.125", formatCell(0.125))
	assert.Equal(t, "-3", formatCell(-3.0))
	assert.Equal(t, "42", formatCell(42))
	assert.Equal(t, "true", formatCell(true))
	assert.Equal(t, "no trend", formatCell("no trend"))
}
