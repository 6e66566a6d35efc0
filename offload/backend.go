// Package offload mirrors WAL segments and backup files to an optional
// off-site object store, outside the critical path of the local commit.
package offload

import (
	"fmt"
	"io"
)

// Backend is a narrow off-site mirror target: push a WAL segment or backup
// file by name, list what has already been pushed, and report the target's
// identity. Unlike the teacher's audit Backend this is pure write/list —
// barman never reads a backup back through the mirror, only from the local
// catalog or (for recovery) directly from the object store out of band.
type Backend interface {
	// PutSegment uploads a WAL segment's content under its bare name.
	PutSegment(name string, content io.Reader, size int64) error

	// PutBackupFile uploads one file from a backup's directory tree,
	// addressed by the backup id and its path relative to the backup root.
	PutBackupFile(backupID, relPath string, content io.Reader, size int64) error

	// List returns the names of everything already pushed under prefix.
	List(prefix string) ([]string, error)

	// Name identifies the backend for logging and metrics labels.
	Name() string

	// Close releases any held resources (connections, clients).
	Close() error
}

// Config builds a Backend.
type Config interface {
	Type() string
	Validate() error
}

// Create builds a Backend from configuration, dispatching on its concrete
// type the same way the teacher's backends.Create does.
func Create(cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("offload: invalid configuration: %w", err)
	}
	switch c := cfg.(type) {
	case FilesystemConfig:
		return NewFilesystemBackend(c)
	case S3Config:
		return NewS3Backend(c)
	case AzureConfig:
		return NewAzureBackend(c)
	case GCSConfig:
		return NewGCSBackend(c)
	default:
		return nil, fmt.Errorf("offload: unknown backend type %q", cfg.Type())
	}
}

// BackendError wraps a backend-specific failure with its operation.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("offload: %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
