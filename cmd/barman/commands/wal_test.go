package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barmanhq/barman/walcatalog"
)

func TestStripStoredExt(t *testing.T) {
	plain, ext := stripStoredExt("000000010000000000000005.gz")
	assert.Equal(t, "000000010000000000000005", plain)
	assert.Equal(t, ".gz", ext)

	plain, ext = stripStoredExt("000000010000000000000005")
	assert.Equal(t, "000000010000000000000005", plain)
	assert.Equal(t, "", ext)
}

func TestFindRecord(t *testing.T) {
	records := []walcatalog.Record{
		{Name: "000000010000000000000005.gz", Size: 10, ModTime: time.Now()},
		{Name: "000000010000000000000006", Size: 20, ModTime: time.Now()},
	}

	rec, stored, ok := findRecord(records, "000000010000000000000006")
	require.True(t, ok)
	assert.Equal(t, "000000010000000000000006", stored)
	assert.Equal(t, int64(20), rec.Size)

	_, _, ok = findRecord(records, "000000010000000000000099")
	assert.False(t, ok)
}

func TestPeekNames(t *testing.T) {
	records := []walcatalog.Record{
		{Name: "000000010000000000000005"},
		{Name: "000000010000000000000007"},
		{Name: "000000010000000000000006.gz"},
		{Name: "000000010000000000000008"},
	}

	names, err := peekNames(records, "000000010000000000000005", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"000000010000000000000006", "000000010000000000000007"}, names)
}

func TestPeekNamesBadFrom(t *testing.T) {
	_, err := peekNames(nil, "not-a-segment", 1)
	assert.Error(t, err)
}
