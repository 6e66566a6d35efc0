package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackup(id string, status Status, when time.Time) *Backup {
	return &Backup{
		ID:        id,
		Status:    status,
		BeginTime: when,
		EndTime:   when.Add(10 * time.Minute),
	}
}

func TestCatalogAddGetRemove(t *testing.T) {
	dir := t.TempDir()
	c, err := Load("myserver", dir)
	require.NoError(t, err)

	b := newTestBackup("20260101T000000", StatusDone, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, c.Add(b))

	got, err := c.Get("20260101T000000")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)

	require.NoError(t, c.Remove("20260101T000000"))
	_, err = c.Get("20260101T000000")
	assert.Error(t, err)
	var unknown *UnknownBackup
	assert.ErrorAs(t, err, &unknown)
}

func TestCatalogLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := Load("myserver", dir)
	require.NoError(t, err)

	b1 := newTestBackup("20260101T000000", StatusDone, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b2 := newTestBackup("20260102T000000", StatusFailed, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, c.Add(b1))
	require.NoError(t, c.Add(b2))

	reloaded, err := Load("myserver", dir)
	require.NoError(t, err)
	all := reloaded.Available(AnyStatus())
	require.Len(t, all, 2)
	assert.Equal(t, "20260101T000000", all[0].ID)
	assert.Equal(t, "20260102T000000", all[1].ID)
}

func TestCatalogAvailableFiltersAndOrders(t *testing.T) {
	dir := t.TempDir()
	c, err := Load("myserver", dir)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Add(newTestBackup("20260103T000000", StatusDone, base.AddDate(0, 0, 2))))
	require.NoError(t, c.Add(newTestBackup("20260101T000000", StatusDone, base)))
	require.NoError(t, c.Add(newTestBackup("20260102T000000", StatusFailed, base.AddDate(0, 0, 1))))

	done := c.Available(Statuses(StatusDone))
	require.Len(t, done, 2)
	assert.Equal(t, "20260101T000000", done[0].ID)
	assert.Equal(t, "20260103T000000", done[1].ID)

	failed := c.Available(Statuses(StatusFailed))
	require.Len(t, failed, 1)
	assert.Equal(t, "20260102T000000", failed[0].ID)
}

func TestCatalogFirstLastPreviousNext(t *testing.T) {
	dir := t.TempDir()
	c, err := Load("myserver", dir)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{"20260101T000000", "20260102T000000", "20260103T000000"}
	for i, id := range ids {
		require.NoError(t, c.Add(newTestBackup(id, StatusDone, base.AddDate(0, 0, i))))
	}

	assert.Equal(t, ids[0], c.First(Statuses(StatusDone)).ID)
	assert.Equal(t, ids[2], c.Last(Statuses(StatusDone)).ID)
	assert.Equal(t, ids[0], c.Previous(ids[1], Statuses(StatusDone)).ID)
	assert.Nil(t, c.Previous(ids[0], Statuses(StatusDone)))
	assert.Equal(t, ids[2], c.Next(ids[1], Statuses(StatusDone)).ID)
	assert.Nil(t, c.Next(ids[2], Statuses(StatusDone)))
}

func TestCatalogUpdateRequiresExistingEntry(t *testing.T) {
	dir := t.TempDir()
	c, err := Load("myserver", dir)
	require.NoError(t, err)

	b := newTestBackup("20260101T000000", StatusStarted, time.Now().UTC().Truncate(time.Second))
	err = c.Update(b)
	assert.Error(t, err)

	require.NoError(t, c.Add(b))
	b2, err := c.Get(b.ID)
	require.NoError(t, err)
	b2.Status = StatusDone
	require.NoError(t, c.Update(b2))

	got, err := c.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
}

func TestLoadOnMissingDirectoryIsEmpty(t *testing.T) {
	c, err := Load("myserver", "/nonexistent/path/for/barman/test")
	require.NoError(t, err)
	assert.Empty(t, c.Available(AnyStatus()))
}

func TestLoadSkipsDirectoryMissingInfoFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "20260101T000000"), 0o750))

	c, err := Load("myserver", dir)
	require.NoError(t, err)
	assert.Empty(t, c.Available(AnyStatus()))
}
