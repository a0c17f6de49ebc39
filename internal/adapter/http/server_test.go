package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/rainfall-trend-etl/internal/adapter/http"
	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStore struct {
	run        domain.Run
	artifacts  []string
	results    map[domain.Level][]domain.TrendResult
	exclusions []domain.Exclusion
	err        error
}

func (m *mockStore) LatestRun(_ context.Context) (domain.Run, []string, error) {
	if m.err != nil {
		return domain.Run{}, nil, m.err
	}
	return m.run, m.artifacts, nil
}

func (m *mockStore) Results(_ context.Context, runID string, level domain.Level) ([]domain.TrendResult, error) {
	if runID != m.run.ID {
		return nil, fmt.Errorf("unknown run %s", runID)
	}
	return append([]domain.TrendResult{}, m.results[level]...), nil
}

func (m *mockStore) Exclusions(_ context.Context, _ string) ([]domain.Exclusion, error) {
	return m.exclusions, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore() *mockStore {
	return &mockStore{
		run: domain.Run{
			ID: "run-42", GeneratedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), Stations: 2, Results: 3,
			Analysis: domain.AnalysisSummary{Seasons: []string{"Winter", "Pre-monsoon", "Monsoon", "Post-monsoon"}},
		},
		artifacts: []string{"Rainfall_Trend_Map_Annual.png"},
		results: map[domain.Level][]domain.TrendResult{
			domain.Annual: {
				{StationID: "a", StationName: "Dhaka", Level: domain.Annual, SenSlope: 3, Significant: true, Direction: domain.Increasing},
				{StationID: "b", StationName: "Khulna", Level: domain.Annual, SenSlope: -1, Direction: domain.Decreasing},
			},
			domain.SeasonLevel("Monsoon"): {
				{StationID: "a", StationName: "Dhaka", Level: domain.SeasonLevel("Monsoon"), SenSlope: 5},
			},
		},
		exclusions: []domain.Exclusion{{StationID: "c", Stage: domain.StageLoad, Kind: domain.KindData, Reason: "no daily records"}},
	}
}

func newTestServer(store httpadapter.RunStore, mapsDir string, readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", store, mapsDir, &mockReadiness{err: readyErr}, discardLogger())
}

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(testStore(), t.TempDir(), nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	rec := get(t, newTestServer(testStore(), t.TempDir(), nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, newTestServer(testStore(), t.TempDir(), domain.ErrNoRuns), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(testStore(), t.TempDir(), nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestLatestRun(t *testing.T) {
	rec := get(t, newTestServer(testStore(), t.TempDir(), nil), "/api/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Run       domain.Run `json:"run"`
		Artifacts []string   `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-42", body.Run.ID)
	assert.Equal(t, []string{"Rainfall_Trend_Map_Annual.png"}, body.Artifacts)
}

func TestLatestRun_Errors(t *testing.T) {
	rec := get(t, newTestServer(&mockStore{err: domain.ErrNoRuns}, t.TempDir(), nil), "/api/runs/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, newTestServer(&mockStore{err: errors.New("disk I/O error")}, t.TempDir(), nil), "/api/runs/latest")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk", "internal errors are not leaked")
}

type trendsBody struct {
	RunID   string               `json:"run_id"`
	Level   string               `json:"level"`
	Count   int                  `json:"count"`
	Results []domain.TrendResult `json:"results"`
}

func TestTrends(t *testing.T) {
	srv := newTestServer(testStore(), t.TempDir(), nil)

	tests := []struct {
		target   string
		level    string
		stations []string
	}{
		{"/api/trends", "annual", []string{"a", "b"}},
		{"/api/trends?level=annual&significant=true", "annual", []string{"a"}},
		{"/api/trends?level=Monsoon", "Monsoon", []string{"a"}},
		{"/api/trends?level=Winter", "Winter", nil},
		{"/api/trends?level=monsoon", "Monsoon", []string{"a"}},
	}
	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			rec := get(t, srv, tc.target)
			require.Equal(t, http.StatusOK, rec.Code)

			var body trendsBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "run-42", body.RunID)
			assert.Equal(t, tc.level, body.Level)
			assert.Equal(t, len(tc.stations), body.Count)
			var ids []string
			for _, r := range body.Results {
				ids = append(ids, r.StationID)
			}
			assert.Equal(t, tc.stations, ids)
		})
	}
}

func TestTrends_BadRequests(t *testing.T) {
	srv := newTestServer(testStore(), t.TempDir(), nil)
	for _, target := range []string{
		"/api/trends?level=monthly",
		"/api/trends?significant=maybe",
		"/api/trends?level=%20",
		"/api/trends?level=Monsoom",
		"/api/trends?level=Dry",
	} {
		rec := get(t, srv, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), target)
	}
}

func TestExclusions(t *testing.T) {
	rec := get(t, newTestServer(testStore(), t.TempDir(), nil), "/api/exclusions")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count      int                `json:"count"`
		Exclusions []domain.Exclusion `json:"exclusions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "no daily records", body.Exclusions[0].Reason)
}

func TestMaps(t *testing.T) {
	dir := t.TempDir()
	png := []byte("\x89PNG\r\n\x1a\nfake")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Rainfall_Trend_Map_Annual.png"), png, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Rainfall_annual.csv"), []byte("x"), 0o644))
	srv := newTestServer(testStore(), dir, nil)

	rec := get(t, srv, "/maps/Rainfall_Trend_Map_Annual.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, png, rec.Body.Bytes())

	for _, target := range []string{
		"/maps/Rainfall_annual.csv",
		"/maps/missing.png",
		"/maps/sub%5Cmap.png",
		"/maps/.hidden.png",
	} {
		rec := get(t, srv, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), target)
	}
}
