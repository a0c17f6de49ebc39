package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/pipeline"
)

type failingGeocoder struct{}

func (failingGeocoder) ForwardGeocode(context.Context, string, string) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{}, errors.New("rate limited")
}

func TestLocator_Locate(t *testing.T) {
	stations := []domain.Station{
		{ID: "Dhaka", Name: "Dhaka", Geo: domain.Geo{Lat: 23.78, Lon: 90.39}},
		{ID: "Bhola", Name: "Bhola"},
	}
	geocoder := &mockGeocoder{result: domain.GeocodingResult{Lat: 22.68, Lon: 90.65}}

	got := pipeline.NewLocator(geocoder, "bd", discardLogger()).Locate(context.Background(), stations)
	require.Len(t, got, 2)

	assert.Equal(t, domain.GeoSourceMetadata, got[0].GeoSource)
	assert.Equal(t, domain.GeoSourceForward, got[1].GeoSource)
	assert.Equal(t, domain.Geo{Lat: 22.68, Lon: 90.65}, got[1].Geo)
	assert.Equal(t, []string{"Bhola"}, geocoder.calls)

	// input is not modified
	assert.True(t, stations[1].Geo.IsZero())
}

func TestLocator_Locate_NoGeocoder(t *testing.T) {
	got := pipeline.NewLocator(nil, "bd", discardLogger()).Locate(context.Background(), []domain.Station{{ID: "Bhola"}})
	require.Len(t, got, 1)
	assert.Equal(t, domain.GeoSourceMissing, got[0].GeoSource)
}

func TestLocator_Locate_GeocoderError(t *testing.T) {
	got := pipeline.NewLocator(failingGeocoder{}, "bd", discardLogger()).Locate(context.Background(), []domain.Station{{ID: "Bhola"}})
	require.Len(t, got, 1)
	assert.Equal(t, domain.GeoSourceFailed, got[0].GeoSource)
	assert.True(t, got[0].Geo.IsZero())
}
