package walcatalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndScan(t *testing.T) {
	dir := t.TempDir()
	j := Open(dir)

	r1 := Record{Name: "0000000100000002000000A1", Size: 16777216, ModTime: time.Now().UTC().Truncate(time.Second)}
	r2 := Record{Name: "0000000100000002000000A2", Size: 16777216, ModTime: time.Now().UTC().Truncate(time.Second), Compression: "gzip"}

	require.NoError(t, j.Append(r1))
	require.NoError(t, j.Append(r2))

	records, err := j.Scan()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, r1.Name, records[0].Name)
	assert.Equal(t, r1.Size, records[0].Size)
	assert.Equal(t, "", records[0].Compression)
	assert.Equal(t, r2.Name, records[1].Name)
	assert.Equal(t, "gzip", records[1].Compression)
}

func TestScanOnMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	j := Open(dir)
	records, err := j.Scan()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestScanSkipsMalformedLinesAndWarns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, JournalFileName)
	content := "0000000100000002000000A1\t16777216\t1700000000\tNone\nnot a valid record line\n0000000100000002000000A2\t16777216\t1700000100\tgzip\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	j := Open(dir)
	records, err := j.Scan()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "0000000100000002000000A1", records[0].Name)
	assert.Equal(t, "0000000100000002000000A2", records[1].Name)
}

func TestScanReadsOldLinesMissingCompressionAsNone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, JournalFileName)
	content := "0000000100000002000000A1\t16777216\t1700000000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	j := Open(dir)
	records, err := j.Scan()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "", records[0].Compression)
}

func TestRewriteKeepsOnlyPredicateMatches(t *testing.T) {
	dir := t.TempDir()
	j := Open(dir)

	for i, name := range []string{
		"0000000100000002000000A1",
		"0000000100000002000000A2",
		"0000000100000002000000A3",
	} {
		require.NoError(t, j.Append(Record{Name: name, Size: int64(i + 1), ModTime: time.Now().UTC()}))
	}

	var dropped []string
	err := j.Rewrite(
		func(r Record) bool { return r.Name != "0000000100000002000000A2" },
		func(r Record) error {
			dropped = append(dropped, r.Name)
			return nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"0000000100000002000000A2"}, dropped)

	records, err := j.Scan()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "0000000100000002000000A1", records[0].Name)
	assert.Equal(t, "0000000100000002000000A3", records[1].Name)
}

func TestRewriteDropsRecordEvenWhenOnDropFails(t *testing.T) {
	dir := t.TempDir()
	j := Open(dir)
	require.NoError(t, j.Append(Record{Name: "0000000100000002000000A1", Size: 1, ModTime: time.Now().UTC()}))

	err := j.Rewrite(
		func(Record) bool { return false },
		func(Record) error { return os.ErrNotExist },
	)
	require.NoError(t, err)

	records, err := j.Scan()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRebuildTwiceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "0000000100000002"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0000000100000002", "0000000100000002000000A1"), []byte("segment-bytes"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0000000100000002", "0000000100000002000000A2.gz"), []byte("segment-bytes-compressed"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0000000100000002", "00000002.history"), []byte("history"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0000000100000002", "0000000100000002000000A3.tmp"), []byte("in-flight"), 0o640))

	j := Open(dir)
	require.NoError(t, j.Rebuild(dir))
	first, err := j.Scan()
	require.NoError(t, err)

	require.NoError(t, j.Rebuild(dir))
	second, err := j.Scan()
	require.NoError(t, err)

	assert.ElementsMatch(t, first, second)
	assert.Len(t, first, 3) // .tmp file excluded

	names := make(map[string]bool)
	for _, r := range first {
		names[r.Name] = true
	}
	assert.True(t, names["0000000100000002000000A1"])
	assert.True(t, names["0000000100000002000000A2.gz"])
	assert.True(t, names["00000002.history"])
	assert.False(t, names["0000000100000002000000A3.tmp"])
}
