package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/errors"
)

const (
	defaultRegion = "us-east-1"
	s3Parallelism = 4
)

// objectStore is the subset of *minio.Client used by S3.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3 uploads every pack file as an object under
// {prefix}/{repo}/{commit}/ in an S3-compatible bucket.
type S3 struct {
	Bucket string
	Region string
	Prefix string
	Logger *log.Logger

	store objectStore
}

// NewS3 creates an S3 uploader with static credentials.
func NewS3(cfg config.S3Config, accessKey, secretKey string, logger *log.Logger) (*S3, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "init s3 client for %s", cfg.Endpoint)
	}
	return &S3{Bucket: cfg.Bucket, Region: region, Prefix: cfg.Prefix, Logger: logger, store: client}, nil
}

// Name implements Uploader.
func (s *S3) Name() string { return config.UploadS3 }

// Upload implements Uploader.
func (s *S3) Upload(ctx context.Context, p Pack) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "ensure bucket %s", s.Bucket)
	}

	base := s.keyPrefix(p)
	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s3Parallelism)
	for _, rel := range p.files() {
		g.Go(func() error {
			data, err := p.read(rel)
			if err != nil {
				return err
			}
			_, err = s.store.PutObject(gctx, s.Bucket, base+rel, bytes.NewReader(data), int64(len(data)),
				minio.PutObjectOptions{ContentType: contentType(rel)})
			if err != nil {
				return errors.Wrap(errors.ErrCodeUpload, err, "put %s", rel)
			}
			total.Add(int64(len(data)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Target:       config.UploadS3,
		PublishedURL: fmt.Sprintf("s3://%s/%s", s.Bucket, base),
		Files:        len(p.files()),
		Bytes:        total.Load(),
	}
	s.logger().Info("uploaded pack", "bucket", s.Bucket, "prefix", base, "files", res.Files)
	return res, nil
}

func (s *S3) ensureBucket(ctx context.Context) error {
	exists, err := s.store.BucketExists(ctx, s.Bucket)
	if err != nil || exists {
		return err
	}
	return s.store.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{Region: s.Region})
}

// keyPrefix returns the object key prefix of p, ending in a slash.
func (s *S3) keyPrefix(p Pack) string {
	return strings.TrimPrefix(path.Join(s.Prefix, p.Repo, p.Commit), "/") + "/"
}

func (s *S3) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}
