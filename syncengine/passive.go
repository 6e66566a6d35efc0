package syncengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	barman "github.com/barmanhq/barman"
	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/copier"
	"github.com/barmanhq/barman/internal/logger"
	"github.com/barmanhq/barman/manager"
	"github.com/barmanhq/barman/retention"
	"github.com/barmanhq/barman/walcatalog"
)

// compressionExtensions mirrors manager's table: the suffix a compressed
// WAL segment carries in the archive tree, so the journal can record the
// bare segment name alongside its compression tag.
var compressionExtensions = map[string]string{
	".gz":   "gzip",
	".bz2":  "bzip2",
	".zstd": "zstd",
	".lz4":  "lz4",
}

func stripCompressionSuffix(name string) string {
	for ext := range compressionExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// Engine runs on a passive node and mirrors one primary server's catalog
// into the local one. PrimaryBaseDir/PrimaryWALDir are filesystem-reachable
// roots for the primary's backup and WAL trees — the same convention
// executor.FileCopyRemote uses for "remote" paths, since the Copy
// Controller itself only ever walks the local filesystem.
type Engine struct {
	ServerName     string
	LockDir        string
	Catalog        *catalog.Catalog
	WALJournal     *walcatalog.Journal
	WALDir         string
	Policy         retention.Policy
	Compression    string // "" means uncompressed
	ParallelJobs   int
	PrimaryBaseDir string
	PrimaryWALDir  string
	Now            func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// SyncBackup applies the decision matrix in spec.md §4.7 for one backup id,
// given a snapshot already fetched from the primary.
func (e *Engine) SyncBackup(ctx context.Context, id string, remote *Snapshot) error {
	lock, err := manager.AcquireLock(manager.BackupLockPath(e.LockDir, id))
	if err != nil {
		return err
	}
	defer lock.Release()

	remoteDTO, onPrimary := remote.Backups[id]
	local, localErr := e.Catalog.Get(id)
	haveLocal := localErr == nil

	if !onPrimary {
		if !haveLocal {
			return &barman.SyncError{Message: fmt.Sprintf("backup %q is not on the primary and has no local copy", id)}
		}
		if local.Status != catalog.StatusDone {
			if err := e.removeLocalRemnant(local); err != nil {
				return err
			}
			return barman.ErrSyncToBeDeleted
		}
		return nil // complete local copy of a backup the primary dropped: leave it
	}

	if haveLocal && local.Status == catalog.StatusDone {
		return nil
	}

	if haveLocal && e.Policy != nil {
		result := e.Policy.Evaluate(e.Catalog.Available(catalog.AnyStatus()), e.now())
		if result.Classification[id] == retention.Obsolete {
			return nil
		}
	}

	return e.copyBackup(ctx, id, remoteDTO)
}

func (e *Engine) removeLocalRemnant(b *catalog.Backup) error {
	dir := e.Catalog.BackupDir(b.ID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("syncengine: remove stale local copy of %s: %w", b.ID, err)
	}
	if err := e.Catalog.Remove(b.ID); err != nil && !isUnknownBackup(err) {
		return fmt.Errorf("syncengine: remove stale catalog entry for %s: %w", b.ID, err)
	}
	return nil
}

func isUnknownBackup(err error) bool {
	var ub *catalog.UnknownBackup
	return errors.As(err, &ub)
}

// copyBackup pulls one backup's directory tree from the primary, protecting
// the pieces a half-finished transfer must not disturb: the metadata file
// itself and per-tablespace symlinks (the backup-level lock lives outside
// the backup directory entirely, under the lock directory, so it is never
// inside this tree to begin with). The metadata file is written separately
// from the primary's JSON once the copy succeeds, rather than trusted
// byte-for-byte from whatever the primary's own backup.info says at the
// instant of the rsync.
func (e *Engine) copyBackup(ctx context.Context, id string, dto BackupDTO) error {
	src := filepath.Join(e.PrimaryBaseDir, id)
	dst := e.Catalog.BackupDir(id)

	item := copier.Item{
		Label:       fmt.Sprintf("backup %s", id),
		Class:       copier.ClassMirror,
		IsDirectory: true,
		Source:      src,
		Destination: dst,
		ExcludeAndProtect: []string{
			catalog.InfoFileName,
			"data/pg_tblspc/*",
		},
	}

	opts := []copier.Option{copier.WithReuseMode(copier.ReuseNone)}
	if e.ParallelJobs > 0 {
		opts = append(opts, copier.WithParallelism(e.ParallelJobs))
	}

	job, err := copier.NewJob([]copier.Item{item}, opts...)
	if err != nil {
		return err
	}
	if _, err := job.Copy(); err != nil {
		return fmt.Errorf("syncengine: copy backup %s: %w", id, err)
	}

	b := fromBackupDTO(dto)
	if haveExisting, err := e.Catalog.Get(id); err == nil {
		_ = haveExisting
		return e.Catalog.Update(b)
	}
	return e.Catalog.Add(b)
}

// SyncWals refuses a compression mismatch or an earliest local backup
// that is newer than the primary's earliest offered WAL (nothing local
// would ever need that WAL), then copies every new segment and appends it
// to the local journal. A tick with nothing new returns
// barman.ErrSyncNothingToDo.
func (e *Engine) SyncWals(ctx context.Context, remote *Snapshot, primaryCompression string) error {
	lock, err := manager.AcquireLock(manager.WALSyncLockPath(e.LockDir))
	if err != nil {
		return err
	}
	defer lock.Release()

	if primaryCompression != e.Compression {
		return &barman.CompressionIncompatibility{Field: "wal_compression"}
	}

	if len(remote.Wals) == 0 {
		return barman.ErrSyncNothingToDo
	}

	if earliest := e.Catalog.First(catalog.Statuses(catalog.StatusDone)); earliest != nil {
		firstOffered, err := walcatalog.Decode(stripCompressionSuffix(remote.Wals[0].Name))
		if err == nil {
			firstRequired, err := walcatalog.Decode(earliest.BeginWAL.Segment)
			// Refuse when the primary's earliest offered WAL is itself older
			// than what our earliest backup needs: our earliest backup is
			// "newer" than that WAL, so nothing locally would ever need it.
			if err == nil && firstOffered.Less(firstRequired) {
				logger.Log.Warn("syncengine: earliest local backup {id} (begin_wal {wal}) is newer than the primary's earliest offered WAL {offered}, skipping sync", earliest.ID, earliest.BeginWAL.Segment, remote.Wals[0].Name)
				return &barman.SyncError{Message: "earliest local backup is newer than the primary's earliest offered WAL"}
			}
		}
	}

	for _, w := range remote.Wals {
		if err := e.copyOneWAL(w); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) copyOneWAL(w WALDTO) error {
	plain := stripCompressionSuffix(w.Name)
	src := filepath.Join(e.PrimaryWALDir, walcatalog.ArchivePath(w.Name))
	dst := filepath.Join(e.WALDir, walcatalog.ArchivePath(w.Name))

	item := copier.Item{
		Label:       fmt.Sprintf("wal %s", plain),
		Class:       copier.ClassMirror,
		IsDirectory: false,
		Source:      src,
		Destination: dst,
	}
	job, err := copier.NewJob([]copier.Item{item})
	if err != nil {
		return err
	}
	if _, err := job.Copy(); err != nil {
		return fmt.Errorf("syncengine: copy wal %s: %w", w.Name, err)
	}

	return e.WALJournal.Append(fromWALDTO(w))
}
