// Package storage uploads completed extract files to S3-compatible
// object storage. The upload happens once after a run finishes and is
// reported but never retried here; a failed upload leaves the local
// file in place for a manual re-run.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ingestUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingest_uploads_total",
	Help: "Object storage uploads by outcome",
}, []string{"status"})

// Config holds object storage settings.
type Config struct {
	// Endpoint is the S3-compatible endpoint (host[:port], no scheme).
	Endpoint string

	// AccessKey and SecretKey authenticate against the endpoint.
	AccessKey string
	SecretKey string

	// UseSSL selects https transport.
	UseSSL bool

	// Bucket is the destination bucket.
	Bucket string

	// Prefix is the logical key prefix, e.g. "raw/customers".
	Prefix string
}

// Uploader pushes files into a bucket with date-based partitioning.
type Uploader struct {
	client *minio.Client
	config Config
	logger zerolog.Logger
}

// NewUploader creates an object storage uploader.
func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Uploader{
		client: cli,
		config: cfg,
		logger: log.With().Str("component", "uploader").Logger(),
	}, nil
}

// EnsureBucket creates the destination bucket if it does not exist.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.config.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.config.Bucket, err)
	}
	if exists {
		return nil
	}

	if err := u.client.MakeBucket(ctx, u.config.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.config.Bucket, err)
	}

	u.logger.Info().Str("bucket", u.config.Bucket).Msg("Created bucket")
	return nil
}

// Upload pushes the local file under a date-partitioned key and
// returns the destination URI.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	key := ObjectKey(u.config.Prefix, filepath.Base(localPath), time.Now())

	info, err := u.client.FPutObject(ctx, u.config.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		ingestUploadsTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}

	ingestUploadsTotal.WithLabelValues("ok").Inc()

	uri := fmt.Sprintf("s3://%s/%s", u.config.Bucket, key)
	u.logger.Info().
		Str("uri", uri).
		Int64("size_bytes", info.Size).
		Msg("Upload complete")

	return uri, nil
}

// ObjectKey builds the destination key: {prefix}/date=YYYY-MM-DD/{name}.
// The date partition lets downstream readers prune by ingestion day.
func ObjectKey(prefix, name string, t time.Time) string {
	datePart := fmt.Sprintf("date=%s", t.Format("2006-01-02"))
	return path.Join(prefix, datePart, name)
}
