// Package s3 uploads run artifacts to S3-compatible object storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/couchcryptid/rainfall-trend-etl/internal/config"
	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/observability"
)

// objectStore is the subset of *minio.Client the uploader uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies every artifact of a run from the output directory to
// runs/<run id>/<file> in a bucket. It implements pipeline.Sink.
type Uploader struct {
	client  objectStore
	bucket  string
	dir     string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewUploader constructs the uploader for artifacts written under dir.
func NewUploader(cfg config.S3Config, dir string, metrics *observability.Metrics, logger *slog.Logger) (*Uploader, error) {
	client, err := minio.New(sanitizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &Uploader{client: client, bucket: cfg.Bucket, dir: dir, metrics: metrics, logger: logger}, nil
}

func (u *Uploader) Name() string { return "s3" }

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err == nil && exists {
		return nil
	}
	err = u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

// Deliver uploads the report's artifacts. Every file is attempted; the
// failures are returned together.
func (u *Uploader) Deliver(ctx context.Context, report *domain.Report) error {
	if err := u.ensureBucket(ctx); err != nil {
		return fmt.Errorf("bucket %s: %w", u.bucket, err)
	}

	var errs []error
	for _, name := range report.Artifacts {
		key := ObjectKey(report.Run.ID, name)
		info, err := u.client.FPutObject(ctx, u.bucket, key, filepath.Join(u.dir, name), minio.PutObjectOptions{
			ContentType: contentType(name),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", name, err))
			continue
		}
		u.metrics.ArtifactsUploaded.Inc()
		u.logger.Debug("artifact uploaded", "key", key, "size", info.Size)
	}
	if len(errs) == 0 {
		u.logger.Info("artifacts uploaded", "bucket", u.bucket, "run_id", report.Run.ID, "files", len(report.Artifacts))
	}
	return errors.Join(errs...)
}

// ObjectKey returns the key an artifact of a run is stored under.
func ObjectKey(runID, name string) string {
	return path.Join("runs", runID, name)
}

var contentTypes = map[string]string{
	".png":  "image/png",
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".prom": "text/plain; version=0.0.4",
}

func contentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
