package manager

import (
	"context"
	"fmt"

	barman "github.com/barmanhq/barman"
	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/executor"
	"github.com/barmanhq/barman/internal/logger"
	"github.com/barmanhq/barman/monitoring"
)

const backupIDLayout = "20060102T150405"

// Backup runs one base-backup attempt, serialized by server.lock:
// pre-hook, pre-retry-hook (abortable), create the EMPTY backup, delegate
// to the executor, fsync the result and mark WAITING_FOR_WALS (or FAILED),
// take a restore point, then the post-retry and post hooks — always, with
// the final backup metadata.
func (m *Manager) Backup(ctx context.Context) (*catalog.Backup, error) {
	lock, err := AcquireLock(ServerLockPath(m.LockDir))
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	runContinue(ctx, m.Hooks.PreBackup, nil, "pre-backup")
	if err := runAbortable(ctx, m.Hooks.PreBackupRetry, nil, "pre-backup-retry"); err != nil {
		return nil, err
	}

	isFirstBackup := len(m.Catalog.Available(catalog.AnyStatus())) == 0
	startedAt := m.now()

	b := &catalog.Backup{
		ID:           m.now().UTC().Format(backupIDLayout),
		Status:       catalog.StatusEmpty,
		Transport:    m.Executor.Transport.Name(),
		Coordination: coordinationOf(m.Executor),
	}
	if err := m.Catalog.Add(b); err != nil {
		return nil, fmt.Errorf("manager: register backup %s: %w", b.ID, err)
	}

	if fc, ok := m.Executor.Transport.(*executor.FileCopyRemote); ok && fc.DestRoot == "" {
		fc.DestRoot = m.Catalog.BackupDir(b.ID)
	}

	m.Executor.Persist = func(cur *catalog.Backup) error {
		return m.Catalog.Update(cur)
	}
	if isFirstBackup {
		m.Executor.ReclaimWALBefore = func(segment string) error {
			return m.reclaimAllWALBefore(segment)
		}
	}

	execErr := m.Executor.Execute(ctx, b, isFirstBackup)
	if execErr != nil {
		if persistErr := m.Catalog.Update(b); persistErr != nil {
			logger.Log.Warn("manager: failed to persist FAILED backup {id}: {error}", b.ID, persistErr)
		}
		runContinue(ctx, m.Hooks.PostBackupRetry, b, "post-backup-retry")
		runContinue(ctx, m.Hooks.PostBackup, b, "post-backup")
		return b, execErr
	}

	destRoot := m.Catalog.BackupDir(b.ID)
	totalBytes, fsyncErr := fsyncTree(destRoot)
	if fsyncErr != nil {
		b.Status = catalog.StatusFailed
		b.Error = fmt.Sprintf("failure fsyncing backup (%s)", fsyncErr)
	} else {
		if b.SizeBytes == 0 {
			b.SizeBytes = totalBytes
		}
		if m.RestorePoint != nil {
			if rpErr := m.RestorePoint.RequestRestorePoint(ctx, "barman_"+b.ID); rpErr != nil {
				logger.Log.Warn("manager: restore point request failed for {id}: {error}", b.ID, rpErr)
			}
		}
		m.mirrorBackup(b.ID, destRoot)
	}

	if err := m.Catalog.Update(b); err != nil {
		logger.Log.Warn("manager: failed to persist backup {id}: {error}", b.ID, err)
	}

	runContinue(ctx, m.Hooks.PostBackupRetry, b, "post-backup-retry")
	runContinue(ctx, m.Hooks.PostBackup, b, "post-backup")

	monitoring.RecordBackup(string(b.Transport), string(b.Coordination), string(b.Status), m.now().Sub(startedAt))

	if b.Status == catalog.StatusFailed {
		return b, &barman.Fatal{Err: fmt.Errorf("backup %s failed: %s", b.ID, b.Error)}
	}
	return b, nil
}

func coordinationOf(e *executor.Executor) catalog.Coordination {
	if e.Coordination == nil {
		return catalog.CoordinationNone
	}
	return e.Coordination.Name()
}

// reclaimAllWALBefore drops every archived WAL segment that orders before
// segment (walcatalog.Name.Less, so segments on earlier timelines are
// dropped too), used only for the very first backup a server ever
// takes — there is no earlier backup to protect WAL for.
func (m *Manager) reclaimAllWALBefore(segment string) error {
	return m.reclaimWAL(segment, nil)
}
