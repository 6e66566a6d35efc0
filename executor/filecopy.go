package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/copier"
)

// defaultExcludes lists paths excluded from every FileCopyRemote backup
// regardless of user configuration: transient runtime directories,
// lock/PID files, log directories, and unsafe tablespace symlinks. The
// control file is copied separately so it lands last.
var defaultExcludes = []string{
	"pg_wal/*",
	"pg_xlog/*",
	"pg_replslot/*",
	"pg_stat_tmp/*",
	"pg_dynshmem/*",
	"pg_notify/*",
	"postmaster.pid",
	"postmaster.opts",
	"log/*",
	"current_logfiles",
	"pg_tblspc/*",
	"global/pg_control",
}

// FileCopyRemote transfers the data directory and tablespaces over the
// Copy Controller, using the previous backup's directory as a reuse
// source when incremental reuse is enabled.
type FileCopyRemote struct {
	UserExclude    []string
	Parallelism    int
	ReuseMode      copier.ReuseMode
	PreviousBackup *catalog.Backup // nil if there is none
	RetryTimes     int
	RetrySleep     time.Duration

	// DestRoot is the backup's own directory, e.g. the catalog's
	// BackupDir(b.ID); every copied item lands under it. Left empty it
	// defaults to "backups/<id>" relative to the working directory, which
	// is only adequate for one-off tests.
	DestRoot string
}

func (t *FileCopyRemote) Name() catalog.Transport { return catalog.TransportFileCopyRemote }

func (t *FileCopyRemote) Check(ctx context.Context) error {
	return nil
}

func (t *FileCopyRemote) BackupCopy(ctx context.Context, b *catalog.Backup) error {
	exclude := append(append([]string{}, defaultExcludes...), t.UserExclude...)

	var reuseSource string
	var safeHorizon time.Time
	if t.PreviousBackup != nil {
		reuseSource = t.PreviousBackup.DataDir
		safeHorizon = t.PreviousBackup.BeginTime
	}

	destRoot := t.DestRoot
	if destRoot == "" {
		destRoot = backupDestRoot(b)
	}

	items := []copier.Item{{
		Label:       "pgdata",
		Class:       copier.ClassPgData,
		IsDirectory: true,
		Source:      b.DataDir,
		Destination: filepath.Join(destRoot, "data"),
		Exclude:     exclude,
		ReuseSource: reuseSource,
	}}

	for _, ts := range b.Tablespaces {
		items = append(items, copier.Item{
			Label:       fmt.Sprintf("tablespace %s", ts.Name),
			Class:       copier.ClassTablespace,
			IsDirectory: true,
			Source:      ts.Location,
			Destination: filepath.Join(destRoot, fmt.Sprintf("%d", ts.OID)),
			ReuseSource: reuseSourceForTablespace(t.PreviousBackup, ts.OID),
		})
	}

	items = append(items, copier.Item{
		Label:       "pg_control",
		Class:       copier.ClassPgControl,
		IsDirectory: false,
		Source:      filepath.Join(b.DataDir, "global", "pg_control"),
		Destination: filepath.Join(destRoot, "data", "global", "pg_control"),
	})

	for _, cf := range b.ConfigFiles {
		items = append(items, copier.Item{
			Label:       fmt.Sprintf("config %s", filepath.Base(cf)),
			Class:       copier.ClassConfig,
			IsDirectory: false,
			Source:      cf,
			Destination: filepath.Join(destRoot, "config", filepath.Base(cf)),
			Optional:    true,
		})
	}

	opts := []copier.Option{
		copier.WithReuseMode(t.ReuseMode),
		copier.WithSafeHorizon(safeHorizon),
	}
	if t.Parallelism > 0 {
		opts = append(opts, copier.WithParallelism(t.Parallelism))
	}
	if t.RetryTimes > 0 {
		opts = append(opts, copier.WithRetry(t.RetryTimes, t.RetrySleep, nil))
	}

	job, err := copier.NewJob(items, opts...)
	if err != nil {
		return err
	}

	stats, err := job.Copy()
	if err != nil {
		return err
	}

	var total int64
	for _, n := range stats.BytesByClass {
		total += n
	}
	b.SizeBytes = total
	return nil
}

func backupDestRoot(b *catalog.Backup) string {
	return filepath.Join("backups", b.ID)
}

func reuseSourceForTablespace(prev *catalog.Backup, oid uint32) string {
	if prev == nil {
		return ""
	}
	for _, ts := range prev.Tablespaces {
		if ts.OID == oid {
			return ts.Location
		}
	}
	return ""
}
