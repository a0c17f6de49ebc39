package mockdata_test

import (
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-trend-etl/internal/loader"
	"github.com/couchcryptid/rainfall-trend-etl/internal/mockdata"
	"github.com/couchcryptid/rainfall-trend-etl/internal/spatial"
)

func smallOptions() mockdata.Options {
	return mockdata.Options{
		Stations:    3,
		StartYear:   2000,
		EndYear:     2001,
		Seed:        7,
		MissingRate: 0.01,
		MaxTrend:    0.01,
	}
}

func TestDaily_Deterministic(t *testing.T) {
	g := mockdata.New(smallOptions())
	st := g.Stations()[0]

	a := g.Daily(st, 2000, 2001)
	b := mockdata.New(smallOptions()).Daily(st, 2000, 2001)
	if diff := cmp.Diff(a, b, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("same seed gave different series (-first +second):\n%s", diff)
	}

	require.Len(t, a, 366+365)
	assert.Equal(t, 2000, a[0].Date.Year())
	assert.Equal(t, 31, a[len(a)-1].Date.Day())

	// a year does not depend on the requested range
	only2001 := g.Daily(st, 2001, 2001)
	if diff := cmp.Diff(a[366:], only2001, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("2001 changed with the range (-full +single):\n%s", diff)
	}
}

func TestDaily_AmountsAndMissing(t *testing.T) {
	opts := smallOptions()
	opts.MissingRate = 0
	g := mockdata.New(opts)
	obs := g.Daily(g.Stations()[1], 2000, 2000)

	var total float64
	for _, o := range obs {
		require.False(t, o.Missing)
		require.GreaterOrEqual(t, o.Amount, 0.0)
		total += o.Amount
	}
	// national climatology is about 2350 mm; allow for the station scale and noise
	assert.InDelta(t, 2350, total, 1500)

	opts.MissingRate = 1
	for _, o := range mockdata.New(opts).Daily(g.Stations()[1], 2000, 2000) {
		require.True(t, o.Missing)
		require.True(t, math.IsNaN(o.Amount))
	}
}

func TestStations(t *testing.T) {
	g := mockdata.New(mockdata.Options{Seed: 1, MaxTrend: 0.02})
	stations := g.Stations()
	require.Len(t, stations, 32)

	ids := make(map[string]bool)
	for _, st := range stations {
		assert.False(t, ids[st.ID], "duplicate %s", st.ID)
		ids[st.ID] = true
		assert.NotEmpty(t, st.Name)
		assert.LessOrEqual(t, math.Abs(st.Trend), 0.02)
	}
	assert.Equal(t, "Cox's Bazar", stations[9].Name)
}

func TestWrite_LoadsBack(t *testing.T) {
	dir := t.TempDir()
	ds, err := mockdata.New(smallOptions()).Write(dir)
	require.NoError(t, err)
	assert.Equal(t, 3*(366+365), ds.Days)

	for _, name := range []string{mockdata.MetadataFile, mockdata.BoundaryFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	res, err := loader.New(slog.New(slog.NewTextHandler(io.Discard, nil))).LoadStations(ds.MetaPath, ds.DailyDir)
	require.NoError(t, err)
	assert.Empty(t, res.Exclusions)
	require.Len(t, res.Stations, 3)
	for _, st := range res.Stations {
		assert.Len(t, st.Observations, 366+365, st.ID)
		assert.False(t, st.Geo.IsZero(), st.ID)
	}
}

func TestBoundary_ContainsCatalogue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, mockdata.BoundaryFile)
	require.NoError(t, mockdata.WriteBoundary(path))

	b, err := spatial.LoadBoundary(path)
	require.NoError(t, err)
	for _, st := range mockdata.New(mockdata.DefaultOptions()).Stations() {
		assert.True(t, b.Contains(orb.Point{st.Geo.Lon, st.Geo.Lat}), "%s outside outline", st.ID)
	}
	assert.False(t, b.Contains(orb.Point{86.0, 27.0}))
}

func TestWriteMetadata_EmptyCoordinates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.csv")
	require.NoError(t, mockdata.WriteMetadata(path, []mockdata.Station{{ID: "Nowhere", Name: "Nowhere"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Station,Name,Latitude,Longitude\nNowhere,Nowhere,,\n", string(data))
}
