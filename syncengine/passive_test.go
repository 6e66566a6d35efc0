package syncengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	barman "github.com/barmanhq/barman"
	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/retention"
	"github.com/barmanhq/barman/walcatalog"
)

func newTestEngine(t *testing.T) (*Engine, *catalog.Catalog) {
	t.Helper()
	root := t.TempDir()
	baseDir := filepath.Join(root, "base")
	walDir := filepath.Join(root, "wals")
	lockDir := filepath.Join(root, "lock")
	require.NoError(t, os.MkdirAll(baseDir, 0o750))

	cat, err := catalog.Load("main", baseDir)
	require.NoError(t, err)

	e := &Engine{
		ServerName: "main",
		LockDir:    lockDir,
		Catalog:    cat,
		WALJournal: walcatalog.Open(walDir),
		WALDir:     walDir,
		Policy:     retention.Redundancy{N: 1},
	}
	return e, cat
}

func TestSyncBackupErrorsWhenMissingEverywhere(t *testing.T) {
	e, _ := newTestEngine(t)
	remote := &Snapshot{Backups: map[string]BackupDTO{}}

	err := e.SyncBackup(context.Background(), "20260101T000000", remote)
	var syncErr *barman.SyncError
	require.ErrorAs(t, err, &syncErr)
}

func TestSyncBackupDeletesIncompleteLocalRemnantWhenGoneFromPrimary(t *testing.T) {
	e, cat := newTestEngine(t)
	b := &catalog.Backup{ID: "20260101T000000", Status: catalog.StatusStarted}
	require.NoError(t, cat.Add(b))

	remote := &Snapshot{Backups: map[string]BackupDTO{}}
	err := e.SyncBackup(context.Background(), b.ID, remote)
	require.ErrorIs(t, err, barman.ErrSyncToBeDeleted)

	_, getErr := cat.Get(b.ID)
	require.Error(t, getErr)
}

func TestSyncBackupLeavesCompleteLocalCopyWhenGoneFromPrimary(t *testing.T) {
	e, cat := newTestEngine(t)
	b := &catalog.Backup{ID: "20260101T000000", Status: catalog.StatusDone}
	require.NoError(t, cat.Add(b))

	remote := &Snapshot{Backups: map[string]BackupDTO{}}
	err := e.SyncBackup(context.Background(), b.ID, remote)
	require.NoError(t, err)

	_, getErr := cat.Get(b.ID)
	require.NoError(t, getErr)
}

func TestSyncBackupNoOpWhenLocalAlreadyDone(t *testing.T) {
	e, cat := newTestEngine(t)
	b := &catalog.Backup{ID: "20260101T000000", Status: catalog.StatusDone}
	require.NoError(t, cat.Add(b))

	remote := &Snapshot{Backups: map[string]BackupDTO{b.ID: {ID: b.ID, Status: string(catalog.StatusDone)}}}
	err := e.SyncBackup(context.Background(), b.ID, remote)
	require.NoError(t, err)
}

func TestSyncBackupCopiesNewBackupFromPrimary(t *testing.T) {
	e, cat := newTestEngine(t)

	primaryRoot := t.TempDir()
	id := "20260101T000000"
	primaryBackupDir := filepath.Join(primaryRoot, id)
	require.NoError(t, os.MkdirAll(filepath.Join(primaryBackupDir, "data"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(primaryBackupDir, "data", "PG_VERSION"), []byte("16"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(primaryBackupDir, catalog.InfoFileName), []byte("backup_id=x\n"), 0o640))
	e.PrimaryBaseDir = primaryRoot

	remote := &Snapshot{Backups: map[string]BackupDTO{
		id: {ID: id, Status: string(catalog.StatusDone), Transport: string(catalog.TransportFileCopyRemote)},
	}}

	err := e.SyncBackup(context.Background(), id, remote)
	require.NoError(t, err)

	stored, err := cat.Get(id)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDone, stored.Status)

	_, statErr := os.Stat(filepath.Join(cat.BackupDir(id), "data", "PG_VERSION"))
	assert.NoError(t, statErr)
}

func TestSyncWalsRefusesCompressionMismatch(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Compression = "gzip"

	err := e.SyncWals(context.Background(), &Snapshot{Wals: []WALDTO{{Name: "x"}}}, "none")
	var mismatch *barman.CompressionIncompatibility
	require.ErrorAs(t, err, &mismatch)
}

func TestSyncWalsNothingToDoOnCleanTick(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.SyncWals(context.Background(), &Snapshot{}, "")
	require.ErrorIs(t, err, barman.ErrSyncNothingToDo)
}

func TestSyncWalsRefusesWhenLocalBackupPredatesPrimaryWindow(t *testing.T) {
	e, cat := newTestEngine(t)
	require.NoError(t, cat.Add(&catalog.Backup{
		ID:       "20260101T000000",
		Status:   catalog.StatusDone,
		BeginWAL: catalog.WALLocation{Segment: "000000010000000000000020"},
	}))

	remote := &Snapshot{Wals: []WALDTO{{Name: "000000010000000000000005", Size: 1, Time: float64(time.Now().Unix())}}}
	err := e.SyncWals(context.Background(), remote, "")
	var syncErr *barman.SyncError
	require.ErrorAs(t, err, &syncErr)
}

func TestSyncWalsCopiesAndAppendsNewSegments(t *testing.T) {
	e, _ := newTestEngine(t)

	primaryWALRoot := t.TempDir()
	e.PrimaryWALDir = primaryWALRoot

	segName := "000000010000000000000005"
	segDir := filepath.Join(primaryWALRoot, segName[:16])
	require.NoError(t, os.MkdirAll(segDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(segDir, segName), []byte("walbytes"), 0o640))

	remote := &Snapshot{Wals: []WALDTO{{Name: segName, Size: 8, Time: float64(time.Now().Unix())}}}
	err := e.SyncWals(context.Background(), remote, "")
	require.NoError(t, err)

	records, err := e.WALJournal.Scan()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, segName, records[0].Name)

	_, statErr := os.Stat(filepath.Join(e.WALDir, segName[:16], segName))
	assert.NoError(t, statErr)
}
