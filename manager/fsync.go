package manager

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// fsyncTree fsyncs every regular file under root and every directory that
// contains one, so a successful backup's bytes are durable before the
// catalog entry is marked WAITING_FOR_WALS. It also returns the total size
// of the files it touched, for Backup.SizeBytes bookkeeping in callers
// that did not already get a size from the transport.
func fsyncTree(root string) (totalBytes int64, err error) {
	synced := make(map[string]struct{})

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			return statErr
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		totalBytes += info.Size()

		f, openErr := os.Open(path)
		if openErr != nil {
			return openErr
		}
		syncErr := f.Sync()
		closeErr := f.Close()
		if syncErr != nil {
			return syncErr
		}
		if closeErr != nil {
			return closeErr
		}
		synced[filepath.Dir(path)] = struct{}{}
		return nil
	})
	if walkErr != nil {
		return totalBytes, fmt.Errorf("manager: fsync tree %s: %w", root, walkErr)
	}

	synced[root] = struct{}{}
	for dir := range synced {
		if err := fsyncDir(dir); err != nil {
			return totalBytes, fmt.Errorf("manager: fsync dir %s: %w", dir, err)
		}
	}
	return totalBytes, nil
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
