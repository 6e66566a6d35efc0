package offload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync/atomic"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/barmanhq/barman/monitoring"
	"github.com/barmanhq/barman/resilience"
)

// GCSConfig configures a Google Cloud Storage mirror target.
type GCSConfig struct {
	Bucket          string
	ProjectID       string
	Prefix          string
	StorageClass    string
	CredentialsFile string
}

func (c GCSConfig) Type() string { return "gcs" }

func (c GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.ProjectID == "" {
		return fmt.Errorf("project ID is required")
	}
	return nil
}

// GCSBackend mirrors segments and backup files into one GCS bucket prefix.
type GCSBackend struct {
	client       *storage.Client
	bucket       *storage.BucketHandle
	bucketName   string
	prefix       string
	storageClass string
	retry        *resilience.RetryPolicy
	closed       atomic.Bool
}

// NewGCSBackend creates a GCS mirror backend, creating the bucket if it
// does not already exist.
func NewGCSBackend(cfg GCSConfig) (*GCSBackend, error) {
	ctx := context.Background()
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("offload: create GCS client: %w", err)
	}

	bucket := client.Bucket(cfg.Bucket)
	if _, err := bucket.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrBucketNotExist) {
			if err := bucket.Create(ctx, cfg.ProjectID, &storage.BucketAttrs{
				StorageClass: cfg.StorageClass,
			}); err != nil {
				client.Close()
				return nil, fmt.Errorf("offload: create GCS bucket: %w", err)
			}
		} else {
			client.Close()
			return nil, fmt.Errorf("offload: verify GCS bucket: %w", err)
		}
	}

	return &GCSBackend{
		client:       client,
		bucket:       bucket,
		bucketName:   cfg.Bucket,
		prefix:       cfg.Prefix,
		storageClass: cfg.StorageClass,
		retry:        resilience.DefaultRetryPolicy(),
	}, nil
}

func (g *GCSBackend) PutSegment(name string, content io.Reader, size int64) error {
	start := time.Now()
	err := g.put(path.Join("wals", name), content)
	monitoring.RecordOffload(g.Name(), "segment", time.Since(start), err == nil)
	if err != nil {
		return &BackendError{Backend: "gcs", Op: "put_segment", Err: err}
	}
	return nil
}

func (g *GCSBackend) PutBackupFile(backupID, relPath string, content io.Reader, size int64) error {
	start := time.Now()
	err := g.put(path.Join("backups", backupID, relPath), content)
	monitoring.RecordOffload(g.Name(), "backup_file", time.Since(start), err == nil)
	if err != nil {
		return &BackendError{Backend: "gcs", Op: "put_backup_file", Err: err}
	}
	return nil
}

func (g *GCSBackend) put(relPath string, content io.Reader) error {
	if g.closed.Load() {
		return fmt.Errorf("backend closed")
	}
	objectName := path.Join(g.prefix, relPath)

	return g.retry.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		obj := g.bucket.Object(objectName)
		writer := obj.NewWriter(ctx)
		if g.storageClass != "" {
			writer.StorageClass = g.storageClass
		}

		err := func() error {
			if _, err := io.Copy(writer, content); err != nil {
				writer.Close()
				return err
			}
			return writer.Close()
		}()
		monitoring.RecordRetry("gcs_offload_upload", err == nil)
		return err
	})
}

func (g *GCSBackend) List(prefix string) ([]string, error) {
	ctx := context.Background()
	query := &storage.Query{Prefix: path.Join(g.prefix, prefix)}

	var names []string
	it := g.bucket.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, &BackendError{Backend: "gcs", Op: "list", Err: err}
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (g *GCSBackend) Name() string {
	return fmt.Sprintf("gcs[%s/%s]", g.bucketName, g.prefix)
}

func (g *GCSBackend) Close() error {
	g.closed.Store(true)
	return g.client.Close()
}
