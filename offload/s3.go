package offload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/barmanhq/barman/monitoring"
	"github.com/barmanhq/barman/resilience"
)

// S3Config configures an S3 mirror target, grounded on the same fields
// the upstream barman-cloud AWS plugin exposes for an off-site bucket.
type S3Config struct {
	Bucket               string
	Region               string
	Prefix               string
	StorageClass         string
	ServerSideEncryption bool
}

func (c S3Config) Type() string { return "s3" }

func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	return nil
}

// S3Backend mirrors segments and backup files into one S3 bucket prefix.
type S3Backend struct {
	client       *s3.Client
	uploader     *manager.Uploader
	bucket       string
	prefix       string
	storageClass string
	encryption   string
	retry        *resilience.RetryPolicy
	closed       atomic.Bool
}

// NewS3Backend creates an S3 mirror backend, verifying (and if absent,
// creating) the target bucket up front so a misconfigured mirror fails at
// startup rather than on the first archived segment.
func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid S3 config: %w", err)
	}

	ctx := context.Background()
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))
	if accessKey := os.Getenv("AWS_ACCESS_KEY_ID"); accessKey != "" {
		if secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY"); secretKey != "" {
			configOpts = append(configOpts,
				config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
			)
		}
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("offload: load AWS config: %w", err)
	}
	if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
			o.UsePathStyle = true
		}
	})

	backend := &S3Backend{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			// Base backups routinely exceed S3's 5GB single-PUT limit;
			// WAL segments never do, but the manager still streams them
			// through in one part rather than buffering in memory.
			u.PartSize = 64 * 1024 * 1024
			u.Concurrency = 4
		}),
		bucket:       cfg.Bucket,
		prefix:       cfg.Prefix,
		storageClass: "STANDARD",
		retry:        resilience.DefaultRetryPolicy(),
	}
	if cfg.StorageClass != "" {
		backend.storageClass = cfg.StorageClass
	}
	if cfg.ServerSideEncryption {
		backend.encryption = "AES256"
	}

	if err := backend.verifyBucket(); err != nil {
		return nil, fmt.Errorf("offload: bucket verification failed: %w", err)
	}
	return backend, nil
}

func (s *S3Backend) PutSegment(name string, content io.Reader, size int64) error {
	start := time.Now()
	err := s.put(path.Join("wals", name), content, size)
	monitoring.RecordOffload(s.Name(), "segment", time.Since(start), err == nil)
	if err != nil {
		return &BackendError{Backend: "s3", Op: "put_segment", Err: err}
	}
	return nil
}

func (s *S3Backend) PutBackupFile(backupID, relPath string, content io.Reader, size int64) error {
	start := time.Now()
	err := s.put(path.Join("backups", backupID, relPath), content, size)
	monitoring.RecordOffload(s.Name(), "backup_file", time.Since(start), err == nil)
	if err != nil {
		return &BackendError{Backend: "s3", Op: "put_backup_file", Err: err}
	}
	return nil
}

func (s *S3Backend) put(relPath string, content io.Reader, size int64) error {
	if s.closed.Load() {
		return fmt.Errorf("backend closed")
	}

	// Spool to a temp file rather than buffering in memory: base backups
	// can run into the gigabytes, and the retry loop below needs to
	// re-read the body from the start on every attempt.
	spool, err := os.CreateTemp("", "barman-s3-offload-*")
	if err != nil {
		return err
	}
	defer os.Remove(spool.Name())
	defer spool.Close()
	if _, err := io.Copy(spool, content); err != nil {
		return err
	}

	key := path.Join(s.prefix, relPath)
	return s.retry.Execute(func() error {
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return err
		}
		input := &s3.PutObjectInput{
			Bucket:       aws.String(s.bucket),
			Key:          aws.String(key),
			Body:         spool,
			StorageClass: types.StorageClass(s.storageClass),
		}
		if s.encryption != "" {
			input.ServerSideEncryption = types.ServerSideEncryption(s.encryption)
		}
		_, err := s.uploader.Upload(context.Background(), input)
		monitoring.RecordRetry("s3_offload_upload", err == nil)
		return err
	})
}

func (s *S3Backend) List(prefix string) ([]string, error) {
	ctx := context.Background()
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(path.Join(s.prefix, prefix)),
	}

	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &BackendError{Backend: "s3", Op: "list", Err: err}
		}
		for _, obj := range page.Contents {
			names = append(names, *obj.Key)
		}
	}
	return names, nil
}

func (s *S3Backend) Name() string {
	return fmt.Sprintf("s3[%s/%s]", s.bucket, s.prefix)
}

func (s *S3Backend) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *S3Backend) verifyBucket() error {
	ctx := context.Background()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			_, createErr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
			return createErr
		}
	}
	return err
}
