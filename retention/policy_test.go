package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barmanhq/barman/catalog"
)

func backupAt(id string, status catalog.Status, endTime time.Time) *catalog.Backup {
	return &catalog.Backup{ID: id, Status: status, EndTime: endTime}
}

func TestRedundancyKeepsNMostRecentDone(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	backups := []*catalog.Backup{
		backupAt("b1", catalog.StatusDone, base),
		backupAt("b2", catalog.StatusDone, base.AddDate(0, 0, 1)),
		backupAt("b3", catalog.StatusDone, base.AddDate(0, 0, 2)),
		backupAt("b4", catalog.StatusFailed, base.AddDate(0, 0, 3)),
	}

	p := Redundancy{N: 2, MinRedundancy: 1}
	result := p.Evaluate(backups, base.AddDate(0, 0, 10))

	assert.Equal(t, Obsolete, result.Classification["b1"])
	assert.Equal(t, Valid, result.Classification["b2"])
	assert.Equal(t, Valid, result.Classification["b3"])
	assert.Equal(t, None, result.Classification["b4"])
	assert.Equal(t, "b2", result.FirstValidID)
}

func TestRedundancyRaisesNToMinimum(t *testing.T) {
	p := Redundancy{N: 1, MinRedundancy: 3}
	assert.Equal(t, 3, p.EffectiveN())

	p2 := Redundancy{N: 5, MinRedundancy: 3}
	assert.Equal(t, 5, p2.EffectiveN())
}

func TestRecoveryWindowClassifiesByEndTime(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	backups := []*catalog.Backup{
		backupAt("b1", catalog.StatusDone, now.AddDate(0, 0, -40)),
		backupAt("b2", catalog.StatusDone, now.AddDate(0, 0, -20)),
		backupAt("b3", catalog.StatusDone, now.AddDate(0, 0, -5)),
	}

	p := RecoveryWindow{Window: 30 * 24 * time.Hour, MinRedundancy: 1}
	result := p.Evaluate(backups, now)

	assert.Equal(t, Obsolete, result.Classification["b1"])
	assert.Equal(t, Valid, result.Classification["b2"])
	assert.Equal(t, Valid, result.Classification["b3"])
	assert.Equal(t, "b2", result.FirstValidID)
}

func TestRecoveryWindowIncludesBoundaryBackup(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	backups := []*catalog.Backup{
		backupAt("outside", catalog.StatusDone, now.AddDate(0, 0, -40)),
		backupAt("boundary", catalog.StatusDone, now.AddDate(0, 0, -29)),
		backupAt("newest", catalog.StatusDone, now.AddDate(0, 0, -1)),
	}
	p := RecoveryWindow{Window: 30 * 24 * time.Hour, MinRedundancy: 1}
	result := p.Evaluate(backups, now)

	// "boundary" is the oldest backup whose end_time is still within the
	// window, so it and everything newer stay VALID; "outside" falls
	// beyond the window and is OBSOLETE.
	assert.Equal(t, Obsolete, result.Classification["outside"])
	assert.Equal(t, Valid, result.Classification["boundary"])
	assert.Equal(t, Valid, result.Classification["newest"])
}

func TestRecoveryWindowUpgradesToPotentiallyObsoleteBelowMinimum(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	backups := []*catalog.Backup{
		backupAt("b1", catalog.StatusDone, now.AddDate(0, 0, -90)),
		backupAt("b2", catalog.StatusDone, now.AddDate(0, 0, -60)),
		backupAt("b3", catalog.StatusDone, now.AddDate(0, 0, -1)),
	}
	p := RecoveryWindow{Window: 10 * 24 * time.Hour, MinRedundancy: 2}
	result := p.Evaluate(backups, now)

	assert.Equal(t, Valid, result.Classification["b3"])
	assert.Equal(t, PotentiallyObsolete, result.Classification["b2"])
	assert.Equal(t, Obsolete, result.Classification["b1"])
	assert.Equal(t, "b2", result.FirstValidID)
}

// TestRecoveryWindowScenario4 reproduces spec.md's worked example literally:
// recovery-window of 7 days, minimum redundancy 2, clock 2024-06-01T12:00:00Z,
// backups X/Y/Z at end_time 2024-05-20/05-27/05-31. Expected: X is upgraded
// to POTENTIALLY_OBSOLETE (it would be OBSOLETE, but is needed to satisfy the
// redundancy floor), Y and Z are VALID, and first-valid is X — the oldest
// non-OBSOLETE entry, not the oldest VALID one.
func TestRecoveryWindowScenario4(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	x := backupAt("X", catalog.StatusDone, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC))
	y := backupAt("Y", catalog.StatusDone, time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC))
	z := backupAt("Z", catalog.StatusDone, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC))
	backups := []*catalog.Backup{x, y, z}

	p := RecoveryWindow{Window: 7 * 24 * time.Hour, MinRedundancy: 2}
	result := p.Evaluate(backups, now)

	assert.Equal(t, PotentiallyObsolete, result.Classification["X"])
	assert.Equal(t, Valid, result.Classification["Y"])
	assert.Equal(t, Valid, result.Classification["Z"])
	assert.Equal(t, "X", result.FirstValidID)
}

func TestKeepTargetOverridesClassificationToValid(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := backupAt("old", catalog.StatusDone, base)
	old.KeepTarget = catalog.KeepFull
	backups := []*catalog.Backup{
		old,
		backupAt("recent", catalog.StatusDone, base.AddDate(0, 0, 5)),
	}

	p := Redundancy{N: 1, MinRedundancy: 1}
	result := p.Evaluate(backups, base.AddDate(0, 0, 10))

	assert.Equal(t, Valid, result.Classification["old"])
	assert.Equal(t, Valid, result.Classification["recent"])
}

func TestWALClassification(t *testing.T) {
	assert.Equal(t, Valid, WALClassification("0000000100000002000000A5", "0000000100000002000000A1"))
	assert.Equal(t, Obsolete, WALClassification("0000000100000002000000A0", "0000000100000002000000A1"))
	assert.Equal(t, Obsolete, WALClassification("0000000100000002000000A5", ""))
}

func TestEmptyCatalogProducesNoFirstValid(t *testing.T) {
	p := Redundancy{N: 3, MinRedundancy: 1}
	result := p.Evaluate(nil, time.Now().UTC())
	require.Empty(t, result.Classification)
	assert.Equal(t, "", result.FirstValidID)
}
