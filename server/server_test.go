package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/executor"
	"github.com/barmanhq/barman/manager"
	"github.com/barmanhq/barman/retention"
)

type fakeCoordination struct{ name catalog.Coordination }

func (f *fakeCoordination) Name() catalog.Coordination { return f.name }
func (f *fakeCoordination) Metadata(ctx context.Context) (executor.Metadata, error) {
	return executor.Metadata{DatabaseVersion: "16.2", WALSegSize: 16 * 1024 * 1024}, nil
}
func (f *fakeCoordination) InRecovery(ctx context.Context) (bool, error)  { return false, nil }
func (f *fakeCoordination) SystemID(ctx context.Context) (string, error) { return "sys1", nil }
func (f *fakeCoordination) StartBackup(ctx context.Context, label string) (executor.StartResult, error) {
	return executor.StartResult{WAL: catalog.WALLocation{Segment: "000000010000000000000001", LSN: "0/1000000"}}, nil
}
func (f *fakeCoordination) StopBackup(ctx context.Context) (executor.StopResult, error) {
	return executor.StopResult{WAL: catalog.WALLocation{Segment: "000000010000000000000002", LSN: "0/2000000"}, Timeline: 1}, nil
}
func (f *fakeCoordination) SwitchWAL(ctx context.Context) (bool, error) { return true, nil }

type fakeTransport struct {
	name    catalog.Transport
	copyErr error
}

func (f *fakeTransport) Name() catalog.Transport          { return f.name }
func (f *fakeTransport) Check(ctx context.Context) error { return nil }
func (f *fakeTransport) BackupCopy(ctx context.Context, b *catalog.Backup) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	b.SizeBytes = 1024
	return nil
}

type fakeArchiver struct {
	name string
	dir  string
}

func (f *fakeArchiver) Name() string     { return f.name }
func (f *fakeArchiver) SpoolDir() string { return f.dir }

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	baseDir := filepath.Join(root, "base")
	walDir := filepath.Join(root, "wals")
	lockDir := filepath.Join(root, "lock")
	require.NoError(t, os.MkdirAll(baseDir, 0o750))

	srv, err := New(
		WithDirectories("main", baseDir, walDir, lockDir),
		WithTransport(&fakeTransport{name: catalog.TransportFileCopyRemote}, &fakeCoordination{name: catalog.CoordinationExclusive}),
		WithRetention(retention.Redundancy{N: 1, MinRedundancy: 1}, 1, true),
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, root
}

func TestNewBuildsAServerThatCanBackup(t *testing.T) {
	srv, _ := newTestServer(t)

	b, err := srv.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20260102T030405", b.ID)
	assert.Equal(t, catalog.StatusWaitingForWALs, b.Status)
}

func TestBackupWithoutTransportReturnsConfigError(t *testing.T) {
	root := t.TempDir()
	srv, err := New(
		WithDirectories("passive1", filepath.Join(root, "base"), filepath.Join(root, "wals"), filepath.Join(root, "lock")),
		WithPassiveOf("main", filepath.Join(root, "primary-base"), filepath.Join(root, "primary-wals")),
	)
	require.NoError(t, err)
	defer srv.Close()

	_, err = srv.Backup(context.Background())
	require.Error(t, err)
}

func TestArchiveWALAndCronCheckAdvancesBackupToDone(t *testing.T) {
	srv, _ := newTestServer(t)

	b, err := srv.Backup(context.Background())
	require.NoError(t, err)
	require.Equal(t, catalog.StatusWaitingForWALs, b.Status)

	spool := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(spool, "000000010000000000000001"), []byte("x"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(spool, "000000010000000000000002"), []byte("x"), 0o640))
	srv.cfg.Archivers = []manager.Archiver{&fakeArchiver{name: "spool", dir: spool}}

	require.NoError(t, srv.ArchiveWAL(context.Background()))
	require.NoError(t, srv.CronCheck())

	stored, err := srv.Catalog.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDone, stored.Status)
}

func TestCronRunsArchiveCheckAndRetentionInOrder(t *testing.T) {
	srv, _ := newTestServer(t)

	b, err := srv.Backup(context.Background())
	require.NoError(t, err)

	spool := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(spool, "000000010000000000000001"), []byte("x"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(spool, "000000010000000000000002"), []byte("x"), 0o640))
	srv.cfg.Archivers = []manager.Archiver{&fakeArchiver{name: "spool", dir: spool}}

	require.NoError(t, srv.Cron(context.Background()))

	stored, err := srv.Catalog.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDone, stored.Status)
}

func TestCheckBackupUnknownIDTranslatesError(t *testing.T) {
	srv, _ := newTestServer(t)
	err := srv.CheckBackup("does-not-exist")
	require.Error(t, err)
}
