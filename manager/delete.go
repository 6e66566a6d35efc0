package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/internal/logger"
	"github.com/barmanhq/barman/walcatalog"
)

// ErrMinimumRedundancy is returned by Delete when removing a DONE backup
// would drop the server below its configured minimum redundancy.
var ErrMinimumRedundancy = errors.New("manager: refusing delete, would violate minimum redundancy")

// Delete removes one backup, serialized by server.lock: redundancy check,
// pre-delete hooks, tablespace-then-pgdata-then-directory removal, WAL
// reclamation (if the deleted backup was the oldest), catalog-entry
// removal (re-checking redundancy once more immediately before it, to
// close the race with a concurrent retention sweep), leftover sync-lock
// cleanup, post-delete hooks.
func (m *Manager) Delete(ctx context.Context, id string) error {
	lock, err := AcquireLock(ServerLockPath(m.LockDir))
	if err != nil {
		return err
	}
	defer lock.Release()

	b, err := m.Catalog.Get(id)
	if err != nil {
		return err
	}

	if err := m.checkMinimumRedundancy(b); err != nil {
		return err
	}

	runContinue(ctx, m.Hooks.PreDelete, b, "pre-delete")

	wasOldest := m.Catalog.First(catalog.AnyStatus()) != nil && m.Catalog.First(catalog.AnyStatus()).ID == b.ID
	next := m.Catalog.Next(b.ID, catalog.AnyStatus())

	if err := m.removeBackupFiles(b); err != nil {
		return fmt.Errorf("manager: %w; remove %s manually", err, m.Catalog.BackupDir(b.ID))
	}

	if wasOldest {
		cutoff, protected := m.reclamationCutoff(b, next)
		if err := m.reclaimWAL(cutoff, protected); err != nil {
			logger.Log.Warn("manager: WAL reclamation after deleting {id} failed: {error}", b.ID, err)
		}
	}

	if err := m.checkMinimumRedundancy(b); err != nil {
		return err
	}
	if err := m.Catalog.Remove(b.ID); err != nil {
		return fmt.Errorf("manager: remove catalog entry for %s: %w", b.ID, err)
	}

	if err := os.Remove(BackupLockPath(m.LockDir, b.ID)); err != nil && !os.IsNotExist(err) {
		logger.Log.Warn("manager: leftover sync lock for {id} could not be removed: {error}", b.ID, err)
	}

	runContinue(ctx, m.Hooks.PostDelete, b, "post-delete")
	return nil
}

func (m *Manager) checkMinimumRedundancy(b *catalog.Backup) error {
	if b.Status != catalog.StatusDone {
		return nil
	}
	done := m.Catalog.Available(catalog.Statuses(catalog.StatusDone))
	if len(done) <= m.MinRedundancy {
		return ErrMinimumRedundancy
	}
	return nil
}

// removeBackupFiles removes tablespace directories, then the pgdata
// directory, then whatever remains of the backup's own directory — fixed
// order because a partial failure should leave the state explainable.
func (m *Manager) removeBackupFiles(b *catalog.Backup) error {
	dir := m.Catalog.BackupDir(b.ID)
	for _, ts := range b.Tablespaces {
		tsDir := filepath.Join(dir, fmt.Sprintf("%d", ts.OID))
		if err := os.RemoveAll(tsDir); err != nil {
			return fmt.Errorf("remove tablespace %s: %w", ts.Name, err)
		}
	}
	pgdata := filepath.Join(dir, "data")
	if err := os.RemoveAll(pgdata); err != nil {
		return fmt.Errorf("remove pgdata: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove backup directory: %w", err)
	}
	return nil
}

// reclamationCutoff picks the WAL name below which segments may be
// reclaimed, and the set of timelines that must never be touched
// regardless of name: timelines belonging to any in-progress backup,
// excluding the cutoff backup's own timeline.
func (m *Manager) reclamationCutoff(deleted, next *catalog.Backup) (cutoff string, protected map[uint32]struct{}) {
	var cutoffBackup *catalog.Backup
	if next != nil {
		cutoffBackup = next
		if deleted.Coordination == catalog.CoordinationConcurrent {
			cutoffBackup = deleted
		}
	}
	if cutoffBackup != nil {
		cutoff = cutoffBackup.BeginWAL.Segment
	}

	protected = make(map[uint32]struct{})
	for _, b := range m.Catalog.Available(catalog.Statuses(catalog.StatusStarted)) {
		protected[b.Timeline] = struct{}{}
	}
	if cutoffBackup != nil {
		delete(protected, cutoffBackup.Timeline)
	}
	return cutoff, protected
}

// reclaimWAL drops every archived, non-history WAL record whose segment
// name lexically precedes cutoff (or every non-history record if cutoff is
// empty), except records on a protected timeline.
func (m *Manager) reclaimWAL(cutoff string, protected map[uint32]struct{}) error {
	var cutoffName walcatalog.Name
	hasCutoff := cutoff != ""
	if hasCutoff {
		name, err := walcatalog.Decode(cutoff)
		if err != nil {
			return fmt.Errorf("manager: decode reclamation cutoff %q: %w", cutoff, err)
		}
		cutoffName = name
	}

	keep := func(r walcatalog.Record) bool {
		plain, _ := stripCompressionExt(r.Name)
		if walcatalog.IsHistory(plain) || walcatalog.IsBackupLabel(plain) {
			return true
		}
		name, err := walcatalog.Decode(plain)
		if err != nil {
			return true
		}
		if _, ok := protected[name.Timeline]; ok {
			return true
		}
		if !hasCutoff {
			return false
		}
		return !name.Less(cutoffName)
	}

	onDrop := func(r walcatalog.Record) error {
		path := filepath.Join(m.WALDir, walcatalog.ArchivePath(r.Name))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	return m.WALJournal.Rewrite(keep, onDrop)
}
