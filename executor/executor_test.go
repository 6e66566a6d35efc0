package executor

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barmanhq/barman/catalog"
)

type fakeConn struct {
	inRecovery bool
	systemID   string
	beginLSN   string
	endLSN     string
	endTimeline uint32
	label       []byte
	tsMap       []TablespaceMapEntry
	switchCalls int
	meta        Metadata
	beginErr    error
	endErr      error
}

func (f *fakeConn) Probe(ctx context.Context) (Metadata, error) { return f.meta, nil }
func (f *fakeConn) InRecovery(ctx context.Context) (bool, error) { return f.inRecovery, nil }
func (f *fakeConn) SystemID(ctx context.Context) (string, error) { return f.systemID, nil }
func (f *fakeConn) ExecBeginBackup(ctx context.Context, label string, exclusive bool) (string, uint32, error) {
	if f.beginErr != nil {
		return "", 0, f.beginErr
	}
	return f.beginLSN, 0, nil
}
func (f *fakeConn) ExecEndBackup(ctx context.Context, exclusive bool) (string, uint32, []byte, []TablespaceMapEntry, error) {
	if f.endErr != nil {
		return "", 0, nil, nil, f.endErr
	}
	return f.endLSN, f.endTimeline, f.label, f.tsMap, nil
}
func (f *fakeConn) ExecSwitchWAL(ctx context.Context) (string, error) {
	f.switchCalls++
	return "0000000100000000000000A1", nil
}

func TestExclusiveStartStopDerivesWALFromLSN(t *testing.T) {
	conn := &fakeConn{
		beginLSN:    "2/A1000028",
		endLSN:      "2/A3000000",
		endTimeline: 1,
		meta:        Metadata{DataDir: "/data", DatabaseVersion: "16.2", WALSegSize: 16 * 1024 * 1024},
	}
	coord := &Exclusive{Conn: conn, WALSegSize: 16 * 1024 * 1024}

	start, err := coord.StartBackup(context.Background(), "label")
	require.NoError(t, err)
	assert.Equal(t, "2/A1000028", start.WAL.LSN)
	assert.NotEmpty(t, start.WAL.Segment)

	stop, err := coord.StopBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), stop.Timeline)
	assert.NotEmpty(t, stop.WAL.Segment)
}

func TestExclusiveSwitchWALSkippedInRecovery(t *testing.T) {
	conn := &fakeConn{inRecovery: true}
	coord := &Exclusive{Conn: conn}
	switched, err := coord.SwitchWAL(context.Background())
	require.NoError(t, err)
	assert.False(t, switched)
	assert.Equal(t, 0, conn.switchCalls)
}

func TestExclusiveSwitchWALRunsWhenPrimary(t *testing.T) {
	conn := &fakeConn{inRecovery: false}
	coord := &Exclusive{Conn: conn}
	switched, err := coord.SwitchWAL(context.Background())
	require.NoError(t, err)
	assert.True(t, switched)
	assert.Equal(t, 1, conn.switchCalls)
}

func TestConcurrentCheckFailsWithoutAPIOrExtension(t *testing.T) {
	coord := &Concurrent{Conn: &fakeConn{}, NativeAPISupported: false, HelperExtensionInstalled: false}
	err := coord.Check(context.Background())
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestConcurrentStopWritesLabelAndTablespaceMap(t *testing.T) {
	dir := t.TempDir()
	conn := &fakeConn{
		endLSN:      "2/A3000000",
		endTimeline: 1,
		label:       []byte("START WAL LOCATION: 2/A1000028"),
		tsMap:       []TablespaceMapEntry{{OID: 16401, Location: "/mnt/ssd/tbs"}},
	}
	coord := &Concurrent{Conn: conn, NativeAPISupported: true, LabelDestDir: dir}

	res, err := coord.StopBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Timeline)

	labelBytes, err := readFile(dir + "/backup_label")
	require.NoError(t, err)
	assert.Equal(t, "START WAL LOCATION: 2/A1000028", string(labelBytes))

	mapBytes, err := readFile(dir + "/tablespace_map")
	require.NoError(t, err)
	assert.Contains(t, string(mapBytes), "16401 /mnt/ssd/tbs")
}

func TestEncodeTablespaceMapEscapesNewlines(t *testing.T) {
	entries := []TablespaceMapEntry{{OID: 1, Location: "/weird\npath\r"}}
	out := EncodeTablespaceMap(entries)
	assert.Equal(t, "1 /weird\\npath\\r\n", string(out))
}

func TestPassiveMirrorDeclinesBackup(t *testing.T) {
	p := &PassiveMirror{}
	err := p.BackupCopy(context.Background(), &catalog.Backup{})
	assert.ErrorIs(t, err, ErrPassiveBackupDeclined)
}

func TestDatabaseStreamingRejectsForbiddenCombinations(t *testing.T) {
	ds := &DatabaseStreaming{PerTablespaceBandwidthLimit: true}
	assert.Error(t, ds.Check(context.Background()))

	ds2 := &DatabaseStreaming{ReuseMode: "link"}
	assert.Error(t, ds2.Check(context.Background()))

	ds3 := &DatabaseStreaming{NetworkCompression: true}
	assert.Error(t, ds3.Check(context.Background()))
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
