package catalog

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBackup() *Backup {
	name := "weekly-full"
	return &Backup{
		ID:              "20260115T030000",
		Name:            &name,
		Status:          StatusDone,
		Transport:       TransportFileCopyRemote,
		Coordination:    CoordinationConcurrent,
		DatabaseVersion: "16.2",
		DataDir:         "/var/lib/postgresql/16/main",
		Tablespaces: []Tablespace{
			{Name: "fast_ssd", OID: 16401, Location: "/mnt/ssd/pg_tbs"},
		},
		ConfigFiles:    []string{"/etc/postgresql/16/main/postgresql.conf"},
		IncludedConfig: []string{"postgresql.conf", "pg_hba.conf"},
		BeginWAL:       WALLocation{Segment: "0000000100000002000000A1", Offset: 40, LSN: "2/A1000028"},
		EndWAL:         WALLocation{Segment: "0000000100000002000000A3", Offset: 0, LSN: "2/A3000000"},
		Timeline:       1,
		WALSegSize:     16 * 1024 * 1024,
		BeginTime:      time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2026, 1, 15, 3, 12, 0, 0, time.UTC),
		SizeBytes:      123456789,
		Label:          []byte("START WAL LOCATION: 2/A1000028 (file 0000000100000002000000A1)"),
		SystemID:       "7234567890123456789",
		KeepTarget:     KeepFull,
	}
}

func TestSaveAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "20260115T030000")
	b := sampleBackup()

	require.NoError(t, Save(backupDir, b))

	f, err := os.Open(filepath.Join(backupDir, InfoFileName))
	require.NoError(t, err)
	defer f.Close()

	got, err := ReadFrom(bufio.NewReader(f), f.Name(), "20260115T030000")
	require.NoError(t, err)

	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, *b.Name, *got.Name)
	assert.Equal(t, b.Status, got.Status)
	assert.Equal(t, b.Transport, got.Transport)
	assert.Equal(t, b.Coordination, got.Coordination)
	assert.Equal(t, b.DatabaseVersion, got.DatabaseVersion)
	assert.Equal(t, b.DataDir, got.DataDir)
	require.Len(t, got.Tablespaces, 1)
	assert.Equal(t, b.Tablespaces[0], got.Tablespaces[0])
	assert.Equal(t, b.ConfigFiles, got.ConfigFiles)
	assert.Equal(t, b.IncludedConfig, got.IncludedConfig)
	assert.Equal(t, b.BeginWAL, got.BeginWAL)
	assert.Equal(t, b.EndWAL, got.EndWAL)
	assert.Equal(t, b.Timeline, got.Timeline)
	assert.Equal(t, b.WALSegSize, got.WALSegSize)
	assert.True(t, b.BeginTime.Equal(got.BeginTime))
	assert.True(t, b.EndTime.Equal(got.EndTime))
	assert.Equal(t, b.SizeBytes, got.SizeBytes)
	assert.Equal(t, b.Label, got.Label)
	assert.Equal(t, b.SystemID, got.SystemID)
	assert.Equal(t, b.KeepTarget, got.KeepTarget)
}

func TestReadFromDirectoryNameWinsOverRecordedID(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "real-dir-name")
	b := sampleBackup()
	b.ID = "stale-recorded-id"
	require.NoError(t, Save(backupDir, b))

	f, err := os.Open(filepath.Join(backupDir, InfoFileName))
	require.NoError(t, err)
	defer f.Close()

	got, err := ReadFrom(bufio.NewReader(f), f.Name(), "real-dir-name")
	require.NoError(t, err)
	assert.Equal(t, "real-dir-name", got.ID)
}

func TestReadFromEmptyOptionalFields(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "20260101T000000")
	b := &Backup{ID: "20260101T000000", Status: StatusEmpty}
	require.NoError(t, Save(backupDir, b))

	f, err := os.Open(filepath.Join(backupDir, InfoFileName))
	require.NoError(t, err)
	defer f.Close()

	got, err := ReadFrom(bufio.NewReader(f), f.Name(), "20260101T000000")
	require.NoError(t, err)
	assert.Nil(t, got.Name)
	assert.Nil(t, got.Tablespaces)
	assert.Nil(t, got.ConfigFiles)
	assert.Nil(t, got.Label)
	assert.True(t, got.BeginTime.IsZero())
	assert.Equal(t, StatusEmpty, got.Status)
}

func TestReadFromUnknownKeyIsIgnored(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "20260101T000000")
	require.NoError(t, os.MkdirAll(backupDir, 0o750))
	content := "backup_id=20260101T000000\nstatus=DONE\nfuture_field=surprise\n"
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, InfoFileName), []byte(content), 0o640))

	f, err := os.Open(filepath.Join(backupDir, InfoFileName))
	require.NoError(t, err)
	defer f.Close()

	got, err := ReadFrom(bufio.NewReader(f), f.Name(), "20260101T000000")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
}

func TestReadFromMalformedLineErrors(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "20260101T000000")
	require.NoError(t, os.MkdirAll(backupDir, 0o750))
	content := "backup_id=20260101T000000\nthis line has no equals sign\n"
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, InfoFileName), []byte(content), 0o640))

	f, err := os.Open(filepath.Join(backupDir, InfoFileName))
	require.NoError(t, err)
	defer f.Close()

	_, err = ReadFrom(bufio.NewReader(f), f.Name(), "20260101T000000")
	assert.Error(t, err)
}

func TestTupleRoundTripWithEmptyAndNilLists(t *testing.T) {
	assert.Equal(t, noneLiteral, dumpTuple(nil))
	assert.Nil(t, loadTuple(noneLiteral))

	items := []string{"a", "b,c", `quoted"value`}
	dumped := dumpTuple(items)
	assert.Equal(t, items, loadTuple(dumped))
}

func TestTablespacesRoundTrip(t *testing.T) {
	tss := []Tablespace{
		{Name: "ts_a", OID: 100, Location: "/mnt/a"},
		{Name: "ts_b", OID: 200, Location: "/mnt/b, with comma"},
	}
	dumped := dumpTablespaces(tss)
	got, err := loadTablespaces(dumped)
	require.NoError(t, err)
	assert.Equal(t, tss, got)
}
