package offload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3ConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     S3Config
		wantErr bool
	}{
		{"valid", S3Config{Bucket: "b", Region: "us-east-1"}, false},
		{"missing bucket", S3Config{Region: "us-east-1"}, true},
		{"missing region", S3Config{Bucket: "b"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAzureConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     AzureConfig
		wantErr bool
	}{
		{"valid", AzureConfig{Container: "c", ConnectionString: "AccountName=a;AccountKey=k"}, false},
		{"missing container", AzureConfig{ConnectionString: "x"}, true},
		{"missing connection string", AzureConfig{Container: "c"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGCSConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     GCSConfig
		wantErr bool
	}{
		{"valid", GCSConfig{Bucket: "b", ProjectID: "p"}, false},
		{"missing bucket", GCSConfig{ProjectID: "p"}, true},
		{"missing project", GCSConfig{Bucket: "b"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilesystemBackendPutSegmentAndList(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFilesystemBackend(FilesystemConfig{Path: dir})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutSegment("000000010000000000000005", strings.NewReader("walbytes"), 8))

	names, err := b.List("wals")
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "wals/000000010000000000000005", names[0])
}

func TestFilesystemBackendPutBackupFile(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFilesystemBackend(FilesystemConfig{Path: dir})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.PutBackupFile("20260101T000000", "data/PG_VERSION", strings.NewReader("16"), 2))

	names, err := b.List("backups")
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "backups/20260101T000000/data/PG_VERSION", names[0])
}

func TestCreateUnknownConfigType(t *testing.T) {
	_, err := Create(unknownConfig{})
	require.Error(t, err)
}

type unknownConfig struct{}

func (unknownConfig) Type() string  { return "unknown" }
func (unknownConfig) Validate() error { return nil }
