package sqlite

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

func openTest(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func testReport(id string, at time.Time) *domain.Report {
	return &domain.Report{
		Run: domain.Run{
			ID: id, GeneratedAt: at, Stations: 2, Results: 3, Excluded: 1,
			Analysis: domain.AnalysisSummary{
				SignificanceLevel: 0.05, MinPeriods: 10, MissingPolicy: domain.PolicyExclude,
				StartYear: 1989, EndYear: 2023, IDWPower: 2, Seasons: []string{"Winter", "Monsoon"},
			},
		},
		Results: []domain.TrendResult{
			{StationID: "b", StationName: "Barisal", Level: domain.Annual, N: 35, SenSlope: 2.5, PValue: 0.2, LinearPValue: math.NaN(), Direction: domain.Increasing},
			{StationID: "a", StationName: "Dhaka", Level: domain.Annual, N: 35, SenSlope: -1, PValue: 0.01, Significant: true, Direction: domain.Decreasing},
			{StationID: "a", StationName: "Dhaka", Level: domain.SeasonLevel("Monsoon"), N: 35, SenSlope: 4, PValue: 0.04, Significant: true, Direction: domain.Increasing},
		},
		Exclusions: []domain.Exclusion{
			{StationID: "c", Level: "Winter", Stage: domain.StageTrend, Kind: domain.KindInsufficientData, Reason: "insufficient data: 6 periods, need at least 10"},
		},
		Artifacts: []string{"Rainfall_annual.csv", "Rainfall_Trend_Map_Annual.png"},
	}
}

func TestArchive_EmptyNotReady(t *testing.T) {
	a := openTest(t)
	ctx := context.Background()

	_, _, err := a.LatestRun(ctx)
	require.ErrorIs(t, err, domain.ErrNoRuns)
	assert.ErrorIs(t, a.CheckReadiness(ctx), domain.ErrNoRuns)
}

func TestArchive_DeliverAndQuery(t *testing.T) {
	a := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 2, 8, 30, 0, 123, time.UTC)
	rep := testReport("run-1", at)

	require.NoError(t, a.Deliver(ctx, rep))
	require.NoError(t, a.CheckReadiness(ctx))

	run, artifacts, err := a.LatestRun(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(rep.Run, run); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, rep.Artifacts, artifacts)

	annual, err := a.Results(ctx, "run-1", domain.Annual)
	require.NoError(t, err)
	if diff := cmp.Diff(rep.Results[:2], annual, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("annual results mismatch (-want +got):\n%s", diff)
	}

	monsoon, err := a.Results(ctx, "run-1", domain.SeasonLevel("Monsoon"))
	require.NoError(t, err)
	require.Len(t, monsoon, 1)
	assert.Equal(t, 4.0, monsoon[0].SenSlope)

	none, err := a.Results(ctx, "run-1", domain.SeasonLevel("Winter"))
	require.NoError(t, err)
	assert.Empty(t, none)

	exclusions, err := a.Exclusions(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rep.Exclusions, exclusions)
}

func TestArchive_LatestRunAndReplace(t *testing.T) {
	a := openTest(t)
	ctx := context.Background()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, a.Deliver(ctx, testReport("old", first)))
	require.NoError(t, a.Deliver(ctx, testReport("new", first.Add(time.Hour))))

	run, _, err := a.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", run.ID)

	// Re-delivering a run replaces its rows instead of failing on the keys.
	rep := testReport("new", first.Add(time.Hour))
	rep.Results = rep.Results[:1]
	rep.Exclusions = nil
	require.NoError(t, a.Deliver(ctx, rep))

	annual, err := a.Results(ctx, "new", domain.Annual)
	require.NoError(t, err)
	assert.Len(t, annual, 1)
	exclusions, err := a.Exclusions(ctx, "new")
	require.NoError(t, err)
	assert.Empty(t, exclusions)

	old, err := a.Results(ctx, "old", domain.Annual)
	require.NoError(t, err)
	assert.Len(t, old, 2, "other runs are untouched")
}

func TestArchive_Name(t *testing.T) {
	assert.Equal(t, "archive", openTest(t).Name())
}
