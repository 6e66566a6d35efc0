package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/walcatalog"
)

func TestCheckBackupNoOpWhileStillInProgress(t *testing.T) {
	m := newTestManager(t)
	b := &catalog.Backup{ID: "x", Status: catalog.StatusStarted}
	require.NoError(t, m.CheckBackup(b))
	assert.Equal(t, catalog.StatusStarted, b.Status)
}

func TestCheckBackupWaitsWhenNothingArchivedYet(t *testing.T) {
	m := newTestManager(t)
	b := &catalog.Backup{
		ID:       "x",
		Timeline: 1,
		BeginWAL: catalog.WALLocation{Segment: "000000010000000000000005"},
		EndWAL:   catalog.WALLocation{Segment: "000000010000000000000010"},
	}
	require.NoError(t, m.CheckBackup(b))
	assert.Equal(t, catalog.StatusWaitingForWALs, b.Status)
}

func TestCheckBackupStaircaseToDone(t *testing.T) {
	m := newTestManager(t)
	b := &catalog.Backup{
		ID:       "x",
		Timeline: 1,
		BeginWAL: catalog.WALLocation{Segment: "000000010000000000000005"},
		EndWAL:   catalog.WALLocation{Segment: "000000010000000000000010"},
	}

	names, err := walcatalog.GenerateRange("000000010000000000000005", "000000010000000000000008", 16*1024*1024)
	require.NoError(t, err)
	seedJournal(t, m, names)

	require.NoError(t, m.CheckBackup(b))
	assert.Equal(t, catalog.StatusWaitingForWALs, b.Status)

	more, err := walcatalog.GenerateRange("000000010000000000000009", "000000010000000000000010", 16*1024*1024)
	require.NoError(t, err)
	seedJournal(t, m, more)

	require.NoError(t, m.CheckBackup(b))
	assert.Equal(t, catalog.StatusDone, b.Status)
}

func TestCheckBackupFailsOnMissingSegment(t *testing.T) {
	m := newTestManager(t)
	b := &catalog.Backup{
		ID:       "x",
		Timeline: 1,
		BeginWAL: catalog.WALLocation{Segment: "000000010000000000000005"},
		EndWAL:   catalog.WALLocation{Segment: "000000010000000000000010"},
	}

	for _, n := range []string{
		"000000010000000000000005",
		"000000010000000000000006",
		"000000010000000000000008",
		"000000010000000000000009",
		"000000010000000000000010",
	} {
		require.NoError(t, m.WALJournal.Append(walcatalog.Record{Name: n, Size: 1, ModTime: time.Now().UTC()}))
	}

	require.NoError(t, m.CheckBackup(b))
	assert.Equal(t, catalog.StatusFailed, b.Status)
	assert.Contains(t, b.Error, "000000010000000000000007")
}
