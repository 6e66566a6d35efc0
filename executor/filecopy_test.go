package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/barmanhq/barman/catalog"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	return dir
}

func TestFileCopyRemoteBackupCopyProducesOrderedItems(t *testing.T) {
	chdirTemp(t)

	srcData := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcData, "global"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(srcData, "global", "pg_control"), []byte("ctl"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(srcData, "PG_VERSION"), []byte("16"), 0o640))

	b := &catalog.Backup{
		ID:      "20260101T000000",
		DataDir: srcData,
	}

	transport := &FileCopyRemote{}
	require.NoError(t, transport.Check(context.Background()))
	err := transport.BackupCopy(context.Background(), b)
	require.NoError(t, err)
	require.Greater(t, b.SizeBytes, int64(0))

	destData := filepath.Join(backupDestRoot(b), "data", "PG_VERSION")
	_, statErr := os.Stat(destData)
	require.NoError(t, statErr)

	destControl := filepath.Join(backupDestRoot(b), "data", "global", "pg_control")
	_, statErr = os.Stat(destControl)
	require.NoError(t, statErr)
}

func TestReuseSourceForTablespaceFindsMatchingOID(t *testing.T) {
	prev := &catalog.Backup{Tablespaces: []catalog.Tablespace{
		{Name: "fast", OID: 16401, Location: "/mnt/ssd"},
	}}
	require.Equal(t, "/mnt/ssd", reuseSourceForTablespace(prev, 16401))
	require.Equal(t, "", reuseSourceForTablespace(prev, 99999))
	require.Equal(t, "", reuseSourceForTablespace(nil, 16401))
}
