package s3

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-trend-etl/internal/config"
	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/observability"
)

// --- mocks ---

type put struct {
	bucket, key, file, contentType string
}

type mockStore struct {
	exists  bool
	made    []string
	puts    []put
	failKey string
}

func (m *mockStore) BucketExists(_ context.Context, _ string) (bool, error) {
	return m.exists, nil
}

func (m *mockStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	m.made = append(m.made, bucket)
	return nil
}

func (m *mockStore) FPutObject(_ context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if object == m.failKey {
		return minio.UploadInfo{}, errors.New("access denied")
	}
	m.puts = append(m.puts, put{bucket, object, filePath, opts.ContentType})
	return minio.UploadInfo{Key: object, Size: 1}, nil
}

func testUploader(store *mockStore, metrics *observability.Metrics) *Uploader {
	return &Uploader{
		client:  store,
		bucket:  "rainfall",
		dir:     "/out",
		metrics: metrics,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestUploader_Deliver(t *testing.T) {
	store := &mockStore{}
	metrics := observability.NewMetricsForTesting()
	u := testUploader(store, metrics)

	report := &domain.Report{
		Run:       domain.Run{ID: "run-7"},
		Artifacts: []string{"Rainfall_annual.csv", "Rainfall_Trend_Map_Annual.png", "Trend_results.xlsx"},
	}
	require.NoError(t, u.Deliver(context.Background(), report))

	assert.Equal(t, []string{"rainfall"}, store.made, "missing bucket is created")
	assert.Equal(t, []put{
		{"rainfall", "runs/run-7/Rainfall_annual.csv", "/out/Rainfall_annual.csv", "text/csv"},
		{"rainfall", "runs/run-7/Rainfall_Trend_Map_Annual.png", "/out/Rainfall_Trend_Map_Annual.png", "image/png"},
		{"rainfall", "runs/run-7/Trend_results.xlsx", "/out/Trend_results.xlsx", contentTypes[".xlsx"]},
	}, store.puts)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ArtifactsUploaded))
	assert.Equal(t, "s3", u.Name())
}

func TestUploader_DeliverContinuesPastFailures(t *testing.T) {
	store := &mockStore{exists: true, failKey: "runs/r/a.png"}
	metrics := observability.NewMetricsForTesting()
	u := testUploader(store, metrics)

	err := u.Deliver(context.Background(), &domain.Report{
		Run:       domain.Run{ID: "r"},
		Artifacts: []string{"a.png", "b.csv"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload a.png: access denied")
	assert.Empty(t, store.made)
	require.Len(t, store.puts, 1)
	assert.Equal(t, "runs/r/b.csv", store.puts[0].key)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ArtifactsUploaded))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", contentType("MAP.PNG"))
	assert.Equal(t, "text/plain; version=0.0.4", contentType("metrics.prom"))
	assert.Equal(t, "application/octet-stream", contentType("README"))
}

func TestSanitizeEndpoint(t *testing.T) {
	assert.Equal(t, "acct.r2.cloudflarestorage.com", sanitizeEndpoint(" https://acct.r2.cloudflarestorage.com/bucket "))
	assert.Equal(t, "localhost:9000", sanitizeEndpoint("http://localhost:9000"))
	assert.Equal(t, "minio:9000", sanitizeEndpoint("minio:9000"))
}

func TestNewUploader(t *testing.T) {
	u, err := NewUploader(config.S3Config{
		Endpoint: "http://localhost:9000", Bucket: "b", AccessKey: "k", SecretKey: "s", Region: "auto",
	}, "/out", observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, "b", u.bucket)
}
