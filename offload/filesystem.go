package offload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/barmanhq/barman/monitoring"
)

// FilesystemConfig configures a filesystem mirror target — typically an
// NFS or other network mount distinct from the primary archive, the
// simplest off-site target barman supports.
type FilesystemConfig struct {
	Path string
}

func (c FilesystemConfig) Type() string { return "filesystem" }

func (c FilesystemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// FilesystemBackend mirrors segments and backup files under a directory
// tree, writing through a temp file and rename for the same
// crash-consistency reason the catalog's own atomic writes use.
type FilesystemBackend struct {
	root string
}

// NewFilesystemBackend creates a filesystem mirror backend.
func NewFilesystemBackend(cfg FilesystemConfig) (*FilesystemBackend, error) {
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("offload: create mirror directory %s: %w", cfg.Path, err)
	}
	return &FilesystemBackend{root: cfg.Path}, nil
}

func (fb *FilesystemBackend) PutSegment(name string, content io.Reader, size int64) error {
	start := time.Now()
	err := fb.put(filepath.Join("wals", name), content)
	monitoring.RecordOffload(fb.Name(), "segment", time.Since(start), err == nil)
	if err != nil {
		return &BackendError{Backend: "filesystem", Op: "put_segment", Err: err}
	}
	return nil
}

func (fb *FilesystemBackend) PutBackupFile(backupID, relPath string, content io.Reader, size int64) error {
	start := time.Now()
	err := fb.put(filepath.Join("backups", backupID, relPath), content)
	monitoring.RecordOffload(fb.Name(), "backup_file", time.Since(start), err == nil)
	if err != nil {
		return &BackendError{Backend: "filesystem", Op: "put_backup_file", Err: err}
	}
	return nil
}

func (fb *FilesystemBackend) put(relPath string, content io.Reader) error {
	dst := filepath.Join(fb.root, relPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func (fb *FilesystemBackend) List(prefix string) ([]string, error) {
	var out []string
	root := filepath.Join(fb.root, filepath.FromSlash(prefix))
	err := filepath.Walk(fb.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		if !strings.HasPrefix(path, root) {
			return nil
		}
		rel, err := filepath.Rel(fb.root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, &BackendError{Backend: "filesystem", Op: "list", Err: err}
	}
	return out, nil
}

func (fb *FilesystemBackend) Name() string {
	return fmt.Sprintf("filesystem[%s]", fb.root)
}

func (fb *FilesystemBackend) Close() error {
	return nil
}
