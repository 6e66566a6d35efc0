// Package manager implements the Backup Manager: the per-server operation
// surface (backup, delete, archiveWal, checkBackup, cronRetention) that
// coordinates the catalog, the WAL catalog, retention, and the executor
// behind the advisory locks described by the concurrency model.
package manager

import (
	"context"
	"time"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/executor"
	"github.com/barmanhq/barman/offload"
	"github.com/barmanhq/barman/retention"
	"github.com/barmanhq/barman/walcatalog"
)

// RestorePointRequester asks the database to record a named restore point,
// the last step of a successful backup.
type RestorePointRequester interface {
	RequestRestorePoint(ctx context.Context, name string) error
}

// Manager owns one server's component graph: a non-owning handle is built
// once per command invocation and passed down to whichever operation the
// CLI layer dispatches to (see [[server]], which is the aggregate that
// actually constructs a Manager from configuration).
type Manager struct {
	ServerName string
	BaseDir    string // <barman_home>/<serverName>/base
	WALDir     string // <barman_home>/<serverName>/wals
	LockDir    string

	Catalog    *catalog.Catalog
	WALJournal *walcatalog.Journal
	Policy     retention.Policy
	Executor   *executor.Executor

	MinRedundancy int
	RetentionAuto bool

	RestorePoint RestorePointRequester // nil disables the restore-point step
	Hooks        Hooks

	// OffloadBackends mirrors successfully archived WAL segments and
	// completed backups to off-site targets. Pushes are fire-and-forget:
	// a backend failure is logged and counted, never surfaced to the
	// caller of ArchiveWAL or Backup, since the local commit has already
	// succeeded by the time a mirror push runs.
	OffloadBackends []offload.Backend

	// Now is the manager's clock, overridable in tests; defaults to
	// time.Now when the Manager is built via New.
	Now func() time.Time
}

// New returns a Manager with Now defaulting to time.Now. Callers still must
// set Catalog, WALJournal, Policy and Executor themselves — Manager has no
// functional-options constructor of its own because every field here is
// already a concrete dependency assembled by the server aggregate, not a
// tunable the manager validates.
func New(serverName, baseDir, walDir, lockDir string) *Manager {
	return &Manager{
		ServerName: serverName,
		BaseDir:    baseDir,
		WALDir:     walDir,
		LockDir:    lockDir,
		Now:        time.Now,
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
