package pgconn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barmanhq/barman/catalog"
)

// fakeScript writes a shell script that dispatches on its first argument,
// printing canned output for the subcommand under test and exiting
// nonzero for "fail".
func fakeScript(t *testing.T, body string) *Script {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-conn.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o750))
	return &Script{Path: path}
}

func TestProbeParsesFields(t *testing.T) {
	s := fakeScript(t, `
case "$1" in
probe)
  printf '/var/lib/postgresql/16/main\tPostgreSQL 16.2\t16777216\tts1:16400:/mnt/ts1\t/etc/postgresql/16/main/postgresql.conf'
  ;;
esac
`)
	meta, err := s.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/postgresql/16/main", meta.DataDir)
	assert.Equal(t, "PostgreSQL 16.2", meta.DatabaseVersion)
	assert.Equal(t, int64(16777216), meta.WALSegSize)
	require.Len(t, meta.Tablespaces, 1)
	assert.Equal(t, catalog.Tablespace{Name: "ts1", OID: 16400, Location: "/mnt/ts1"}, meta.Tablespaces[0])
	assert.Equal(t, []string{"/etc/postgresql/16/main/postgresql.conf"}, meta.ConfigFiles)
}

func TestInRecovery(t *testing.T) {
	s := fakeScript(t, `[ "$1" = "in-recovery" ] && printf 'true'`)
	inRecovery, err := s.InRecovery(context.Background())
	require.NoError(t, err)
	assert.True(t, inRecovery)
}

func TestExecBeginBackupExclusive(t *testing.T) {
	s := fakeScript(t, `[ "$1" = "begin-backup" ] && printf '0/1000000\t1'`)
	lsn, timeline, err := s.ExecBeginBackup(context.Background(), "barman backup", true)
	require.NoError(t, err)
	assert.Equal(t, "0/1000000", lsn)
	assert.Equal(t, uint32(1), timeline)
}

func TestExecEndBackupConcurrentWithTablespaceMap(t *testing.T) {
	s := fakeScript(t, `[ "$1" = "end-backup" ] && printf '0/2000000\t1\tYmFja3VwLWxhYmVs\t16400:/mnt/ts1'`)
	lsn, timeline, label, mapping, err := s.ExecEndBackup(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "0/2000000", lsn)
	assert.Equal(t, uint32(1), timeline)
	assert.Equal(t, []byte("backup-label"), label)
	require.Len(t, mapping, 1)
	assert.Equal(t, uint32(16400), mapping[0].OID)
	assert.Equal(t, "/mnt/ts1", mapping[0].Location)
}

func TestRunFailureWrapsCommandFailed(t *testing.T) {
	s := fakeScript(t, `echo "boom" 1>&2; exit 3`)
	_, err := s.SystemID(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "exit 3)")
}

func TestStreamingToolParsesSize(t *testing.T) {
	tool := &StreamingTool{Script: Script{Path: ""}, BandwidthLimitSupported: true}
	path := filepath.Join(t.TempDir(), "stream.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nprintf '12345'\n"), 0o750))
	tool.Script.Path = path

	assert.True(t, tool.SupportsBandwidthLimit())
	size, err := tool.Run(context.Background(), t.TempDir(), &catalog.Backup{ID: "20260101T000000"})
	require.NoError(t, err)
	assert.Equal(t, int64(12345), size)
}
