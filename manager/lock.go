package manager

import (
	"fmt"
	"os"
	"path/filepath"

	barman "github.com/barmanhq/barman"
)

// Lock is an on-disk advisory lock: its presence means held. Acquisition is
// non-blocking — a lock already held by anyone (including a dead process
// that never cleaned up) makes Acquire fail with *barman.LockBusy rather
// than waiting.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock creates path exclusively and writes the current pid into it.
// Any failure other than "already exists" is returned as-is; an existing
// lock file is reported as *barman.LockBusy.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("manager: create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		if os.IsExist(err) {
			return nil, &barman.LockBusy{Lock: path}
		}
		return nil, fmt.Errorf("manager: acquire lock %s: %w", path, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Lock{path: path, file: f}, nil
}

// Release closes and removes the lock file. It is safe to call once; a
// second call is a no-op error that callers should ignore via defer.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	_ = l.file.Close()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("manager: release lock %s: %w", l.path, err)
	}
	return nil
}

// ServerLockPath, BackupLockPath, WALSyncLockPath and ReceiveWALLockPath
// name the four advisory locks of the concurrency model: mutually
// exclusive server.lock for backup/delete/archiveWal/syncBackup/syncWals,
// a per-backup-id lock for syncBackup, a single wal-sync.lock for syncWals,
// and receive-wal.lock for the streaming WAL receiver subprocess. They are
// exported so syncengine, which shares the same lock directory, names the
// same files rather than duplicating the convention.
func ServerLockPath(lockDir string) string {
	return filepath.Join(lockDir, "server.lock")
}

func BackupLockPath(lockDir, id string) string {
	return filepath.Join(lockDir, fmt.Sprintf("backup.lock.%s", id))
}

func WALSyncLockPath(lockDir string) string {
	return filepath.Join(lockDir, "wal-sync.lock")
}

func ReceiveWALLockPath(lockDir string) string {
	return filepath.Join(lockDir, "receive-wal.lock")
}

