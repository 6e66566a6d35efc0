package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	name string
	dir  string
}

func (f *fakeArchiver) Name() string     { return f.name }
func (f *fakeArchiver) SpoolDir() string { return f.dir }

func TestArchiveWALMovesRecognizedFilesAndAppendsJournal(t *testing.T) {
	m := newTestManager(t)
	spool := filepath.Join(t.TempDir(), "incoming")
	require.NoError(t, os.MkdirAll(spool, 0o750))

	segName := "000000010000000000000001"
	require.NoError(t, os.WriteFile(filepath.Join(spool, segName), []byte("walbytes"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(spool, "junk.tmp"), []byte("partial"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(spool, "not-a-wal-name"), []byte("garbage"), 0o640))

	err := m.ArchiveWAL(context.Background(), []Archiver{&fakeArchiver{name: "file-drop", dir: spool}})
	require.NoError(t, err)

	records, err := m.WALJournal.Scan()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, segName, records[0].Name)

	_, statErr := os.Stat(filepath.Join(m.WALDir, segName[:16], segName))
	assert.NoError(t, statErr)

	_, tmpStatErr := os.Stat(filepath.Join(spool, "junk.tmp"))
	assert.NoError(t, tmpStatErr, "tmp files are left alone, not archived")
}

func TestArchiveWALContinuesAfterOneArchiverFails(t *testing.T) {
	m := newTestManager(t)
	good := filepath.Join(t.TempDir(), "good")
	require.NoError(t, os.MkdirAll(good, 0o750))
	seg := "000000010000000000000002"
	require.NoError(t, os.WriteFile(filepath.Join(good, seg), []byte("x"), 0o640))

	missing := filepath.Join(t.TempDir(), "does-not-exist")

	err := m.ArchiveWAL(context.Background(), []Archiver{
		&fakeArchiver{name: "missing", dir: missing},
		&fakeArchiver{name: "good", dir: good},
	})
	require.NoError(t, err)

	records, err := m.WALJournal.Scan()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, seg, records[0].Name)
}
