package offload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/barmanhq/barman/monitoring"
	"github.com/barmanhq/barman/resilience"
)

// AzureConfig configures an Azure Blob Storage mirror target.
type AzureConfig struct {
	Container        string
	ConnectionString string
	Prefix           string
	AccessTier       string
}

func (c AzureConfig) Type() string { return "azure" }

func (c AzureConfig) Validate() error {
	if c.Container == "" {
		return fmt.Errorf("container is required")
	}
	if c.ConnectionString == "" {
		return fmt.Errorf("connection string is required")
	}
	return nil
}

// AzureBackend mirrors segments and backup files into one Azure Blob
// Storage container prefix.
type AzureBackend struct {
	containerURL azblob.ContainerURL
	containerRef string
	prefix       string
	retry        *resilience.RetryPolicy
	closed       atomic.Bool
}

// NewAzureBackend creates an Azure mirror backend, creating the container
// if it does not already exist.
func NewAzureBackend(cfg AzureConfig) (*AzureBackend, error) {
	accountName, accountKey, err := parseAzureConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("offload: invalid Azure connection string: %w", err)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("offload: create Azure credential: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", accountName, cfg.Container))
	if err != nil {
		return nil, fmt.Errorf("offload: build Azure container URL: %w", err)
	}
	containerURL := azblob.NewContainerURL(*u, pipeline)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{}); err != nil {
		if _, createErr := containerURL.Create(ctx, azblob.Metadata{}, azblob.PublicAccessNone); createErr != nil &&
			!strings.Contains(createErr.Error(), "already exists") && !strings.Contains(createErr.Error(), "409") {
			return nil, fmt.Errorf("offload: verify Azure container: %w", err)
		}
	}

	return &AzureBackend{
		containerURL: containerURL,
		containerRef: cfg.Container,
		prefix:       cfg.Prefix,
		retry:        resilience.DefaultRetryPolicy(),
	}, nil
}

func parseAzureConnectionString(connStr string) (accountName, accountKey string, err error) {
	for _, part := range strings.Split(connStr, ";") {
		switch {
		case strings.HasPrefix(part, "AccountName="):
			accountName = strings.TrimPrefix(part, "AccountName=")
		case strings.HasPrefix(part, "AccountKey="):
			accountKey = strings.TrimPrefix(part, "AccountKey=")
		}
	}
	if accountName == "" || accountKey == "" {
		return "", "", fmt.Errorf("connection string must contain AccountName and AccountKey")
	}
	return accountName, accountKey, nil
}

func (a *AzureBackend) PutSegment(name string, content io.Reader, size int64) error {
	start := time.Now()
	err := a.put(path.Join("wals", name), content)
	monitoring.RecordOffload(a.Name(), "segment", time.Since(start), err == nil)
	if err != nil {
		return &BackendError{Backend: "azure", Op: "put_segment", Err: err}
	}
	return nil
}

func (a *AzureBackend) PutBackupFile(backupID, relPath string, content io.Reader, size int64) error {
	start := time.Now()
	err := a.put(path.Join("backups", backupID, relPath), content)
	monitoring.RecordOffload(a.Name(), "backup_file", time.Since(start), err == nil)
	if err != nil {
		return &BackendError{Backend: "azure", Op: "put_backup_file", Err: err}
	}
	return nil
}

func (a *AzureBackend) put(relPath string, content io.Reader) error {
	if a.closed.Load() {
		return fmt.Errorf("backend closed")
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, content); err != nil {
		return err
	}
	blobName := path.Join(a.prefix, relPath)
	blobURL := a.containerURL.NewBlockBlobURL(blobName)
	data := buf.Bytes()

	return a.retry.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		_, err := azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{})
		monitoring.RecordRetry("azure_offload_upload", err == nil)
		return err
	})
}

func (a *AzureBackend) List(prefix string) ([]string, error) {
	ctx := context.Background()
	var names []string
	listPrefix := path.Join(a.prefix, prefix)

	for marker := (azblob.Marker{}); marker.NotDone(); {
		listBlob, err := a.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: listPrefix,
		})
		if err != nil {
			return nil, &BackendError{Backend: "azure", Op: "list", Err: err}
		}
		marker = listBlob.NextMarker
		for _, item := range listBlob.Segment.BlobItems {
			names = append(names, item.Name)
		}
	}
	return names, nil
}

func (a *AzureBackend) Name() string {
	return fmt.Sprintf("azure[%s/%s]", a.containerRef, a.prefix)
}

func (a *AzureBackend) Close() error {
	a.closed.Store(true)
	return nil
}
