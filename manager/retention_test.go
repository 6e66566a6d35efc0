package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/retention"
)

func TestCronRetentionNoOpWithoutAuto(t *testing.T) {
	m := newTestManager(t)
	m.MinRedundancy = 0
	m.RetentionAuto = false
	m.Policy = retention.Redundancy{N: 1}

	addDoneBackup(t, m, "20260101T000000", "000000010000000000000001", 1, catalog.CoordinationExclusive)
	addDoneBackup(t, m, "20260102T000000", "000000010000000000000002", 1, catalog.CoordinationExclusive)

	require.NoError(t, m.CronRetention(context.Background()))

	assert.Len(t, m.Catalog.Available(catalog.AnyStatus()), 2, "no backup should be removed without RetentionAuto")
}

func TestCronRetentionDeletesObsoleteBackups(t *testing.T) {
	m := newTestManager(t)
	m.MinRedundancy = 0
	m.RetentionAuto = true
	m.Policy = retention.Redundancy{N: 1}

	addDoneBackup(t, m, "20260101T000000", "000000010000000000000001", 1, catalog.CoordinationExclusive)
	newest := addDoneBackup(t, m, "20260102T000000", "000000010000000000000002", 1, catalog.CoordinationExclusive)

	require.NoError(t, m.CronRetention(context.Background()))

	remaining := m.Catalog.Available(catalog.AnyStatus())
	require.Len(t, remaining, 1)
	assert.Equal(t, newest.ID, remaining[0].ID)
}

func TestCronRetentionNoOpWithoutPolicy(t *testing.T) {
	m := newTestManager(t)
	m.RetentionAuto = true
	m.Policy = nil

	addDoneBackup(t, m, "20260101T000000", "000000010000000000000001", 1, catalog.CoordinationExclusive)

	require.NoError(t, m.CronRetention(context.Background()))
	assert.Len(t, m.Catalog.Available(catalog.AnyStatus()), 1)
}
