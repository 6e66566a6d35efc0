package manager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/barmanhq/barman/internal/logger"
	"github.com/barmanhq/barman/walcatalog"
)

// Archiver is a plug-in source of incoming WAL segments: a file-drop spool
// directory or a streaming receiver's spool. ArchiveWAL treats every
// registered archiver independently — one archiver's failure is logged and
// does not block the others, matching the "idempotent, at-least-once"
// contract.
type Archiver interface {
	Name() string
	SpoolDir() string
}

// ArchiveWAL drains every archiver's spool into the archive tree, appending
// a journal record per segment and running the WAL hooks around each
// successfully archived file.
func (m *Manager) ArchiveWAL(ctx context.Context, archivers []Archiver) error {
	lock, err := AcquireLock(ServerLockPath(m.LockDir))
	if err != nil {
		return err
	}
	defer lock.Release()

	for _, a := range archivers {
		if err := m.drainArchiver(ctx, a); err != nil {
			logger.Log.Warn("manager: archiver {name} failed: {error}", a.Name(), err)
		}
	}
	return nil
}

func (m *Manager) drainArchiver(ctx context.Context, a Archiver) error {
	entries, err := os.ReadDir(a.SpoolDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read spool %s: %w", a.SpoolDir(), err)
	}

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if filepath.Ext(name) == ".tmp" {
			continue
		}
		if err := m.archiveOne(ctx, a, name); err != nil {
			logger.Log.Warn("manager: archiver {name}: failed to archive {file}: {error}", a.Name(), name, err)
		}
	}
	return nil
}

func (m *Manager) archiveOne(ctx context.Context, a Archiver, name string) error {
	plain, compression := stripCompressionExt(name)
	if !walcatalog.IsWAL(plain) && !walcatalog.IsHistory(plain) && !walcatalog.IsBackupLabel(plain) {
		return fmt.Errorf("unrecognized file name %q", name)
	}

	src := filepath.Join(a.SpoolDir(), name)
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	relDest := walcatalog.ArchivePath(name)
	dest := filepath.Join(m.WALDir, relDest)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	runContinue(ctx, m.Hooks.PreWAL, nil, "pre-wal")

	if err := moveFile(src, dest); err != nil {
		return fmt.Errorf("move into archive: %w", err)
	}

	rec := walcatalog.Record{
		Name:        name,
		Size:        info.Size(),
		ModTime:     info.ModTime().UTC(),
		Compression: compression,
	}
	if err := m.WALJournal.Append(rec); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	m.mirrorSegment(name, dest)

	runContinue(ctx, m.Hooks.PostWAL, nil, "post-wal")
	return nil
}

// moveFile renames src to dest, falling back to copy-then-remove if they
// are on different filesystems (os.Rename's EXDEV).
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, copyErr := io.Copy(out, in); copyErr != nil {
		out.Close()
		return copyErr
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
