// Package retention evaluates a catalog snapshot against a retention
// policy and classifies each backup (and, by the same rule applied
// recursively, each WAL segment) as VALID, OBSOLETE, or
// POTENTIALLY_OBSOLETE. It is a pure function of its inputs: it reads a
// catalog snapshot and a clock value, and produces a classification map —
// it never mutates the catalog or touches disk itself.
package retention

import (
	"time"

	"github.com/barmanhq/barman/catalog"
)

// Classification is the retention verdict for one backup or WAL segment.
type Classification string

const (
	// Valid means the entry is protected by the policy.
	Valid Classification = "VALID"
	// Obsolete means the entry may be reclaimed.
	Obsolete Classification = "OBSOLETE"
	// PotentiallyObsolete means the entry would be OBSOLETE except the
	// minimum-redundancy floor is currently keeping it around.
	PotentiallyObsolete Classification = "POTENTIALLY_OBSOLETE"
	// None means the policy does not classify this entry at all (it is
	// not a DONE backup).
	None Classification = "NONE"
)

// Policy is implemented by the two policy variants below.
type Policy interface {
	// Evaluate classifies every backup in backups (assumed already
	// chronologically sorted, oldest first) as of now.
	Evaluate(backups []*catalog.Backup, now time.Time) Result
}

// Result is the output of evaluating a policy: a classification per backup
// id, plus the id of the oldest non-OBSOLETE backup (VALID,
// POTENTIALLY_OBSOLETE, or kept) — not yet safe to reclaim, so it anchors
// WAL reclamation (see [[manager]]'s delete() cutoff logic).
type Result struct {
	Classification map[string]Classification
	FirstValidID   string
}

// Redundancy keeps the N most recent DONE backups as VALID; older DONE
// backups are OBSOLETE. Non-DONE backups are always NONE. If N is below
// MinRedundancy, N is raised to MinRedundancy and a warning is logged by
// the caller (the policy itself only returns the adjusted count via
// EffectiveN so the caller can decide how to surface it).
type Redundancy struct {
	N             int
	MinRedundancy int
}

// EffectiveN returns N raised to MinRedundancy if necessary.
func (p Redundancy) EffectiveN() int {
	if p.N < p.MinRedundancy {
		return p.MinRedundancy
	}
	return p.N
}

func (p Redundancy) Evaluate(backups []*catalog.Backup, _ time.Time) Result {
	n := p.EffectiveN()
	result := Result{Classification: make(map[string]Classification, len(backups))}

	done := doneOnly(backups)
	keepFrom := len(done) - n
	if keepFrom < 0 {
		keepFrom = 0
	}

	for _, b := range backups {
		if b.Status != catalog.StatusDone {
			result.Classification[b.ID] = None
		}
	}
	for i, b := range done {
		if i >= keepFrom {
			result.Classification[b.ID] = Valid
			if result.FirstValidID == "" {
				result.FirstValidID = b.ID
			}
		} else {
			result.Classification[b.ID] = Obsolete
		}
	}
	applyKeepOverride(backups, result.Classification)
	result.FirstValidID = firstValidAmong(backups, result.Classification)
	return result
}

// RecoveryWindow keeps every DONE backup whose end_time is within the last
// Days/Weeks/Months worth of time (expressed as a single Duration by the
// caller), promoting the boundary-crossing backup and everything newer to
// VALID. Older backups are OBSOLETE, except that the evaluator upgrades the
// newest OBSOLETE entries to POTENTIALLY_OBSOLETE whenever the window's own
// VALID count is at or below MinRedundancy — including exactly at it, since
// the window alone never keeps the one backup needed to restore to the very
// start of the window once it ages out.
type RecoveryWindow struct {
	Window        time.Duration
	MinRedundancy int
}

func (p RecoveryWindow) Evaluate(backups []*catalog.Backup, now time.Time) Result {
	result := Result{Classification: make(map[string]Classification, len(backups))}
	pointOfRecoverability := now.Add(-p.Window)

	done := doneOnly(backups)
	for _, b := range backups {
		if b.Status != catalog.StatusDone {
			result.Classification[b.ID] = None
		}
	}

	// Walk newest-first: everything down to and including the oldest
	// backup whose end_time >= point is VALID; the first one that no
	// longer satisfies end_time >= point, and everything older than it,
	// is OBSOLETE.
	validCount := 0
	crossedBoundary := false
	for i := len(done) - 1; i >= 0; i-- {
		b := done[i]
		if crossedBoundary {
			result.Classification[b.ID] = Obsolete
			continue
		}
		if !b.EndTime.Before(pointOfRecoverability) {
			result.Classification[b.ID] = Valid
			validCount++
		} else {
			result.Classification[b.ID] = Obsolete
			crossedBoundary = true
		}
	}

	// Minimum-redundancy floor: the window alone must leave some slack
	// above MinRedundancy, or the backup right at the window boundary is
	// the only thing that can restore to the earliest moments of the
	// window once it ages out. So when validCount is merely at or below
	// the floor (not comfortably above it), upgrade the newest OBSOLETE
	// entries to POTENTIALLY_OBSOLETE: enough to close any deficit, and
	// at least one even if the floor is exactly met.
	if p.MinRedundancy > 0 && validCount <= p.MinRedundancy {
		need := p.MinRedundancy - validCount
		if need < 1 {
			need = 1
		}
		for i := len(done) - 1; i >= 0 && need > 0; i-- {
			b := done[i]
			if result.Classification[b.ID] == Obsolete {
				result.Classification[b.ID] = PotentiallyObsolete
				need--
			}
		}
	}

	applyKeepOverride(backups, result.Classification)
	result.FirstValidID = firstValidAmong(backups, result.Classification)
	return result
}

func doneOnly(backups []*catalog.Backup) []*catalog.Backup {
	var out []*catalog.Backup
	for _, b := range backups {
		if b.Status == catalog.StatusDone {
			out = append(out, b)
		}
	}
	return out
}

// applyKeepOverride forces VALID for any backup carrying a manual
// KeepTarget, regardless of what the policy computed for it.
func applyKeepOverride(backups []*catalog.Backup, class map[string]Classification) {
	for _, b := range backups {
		if b.KeepTarget != catalog.KeepNone {
			class[b.ID] = Valid
		}
	}
}

// firstValidAmong returns the chronologically earliest backup id classified
// VALID or POTENTIALLY_OBSOLETE (i.e. not yet safe to reclaim), assuming
// backups is already sorted oldest-first. A POTENTIALLY_OBSOLETE entry is
// kept around by the minimum-redundancy floor just like a VALID one, so it
// anchors WAL reclamation exactly the same way.
func firstValidAmong(backups []*catalog.Backup, class map[string]Classification) string {
	for _, b := range backups {
		switch class[b.ID] {
		case Valid, PotentiallyObsolete:
			return b.ID
		}
	}
	return ""
}

// WALClassification classifies a WAL segment using "the same as the base-backup
// policy" rule: a WAL segment is VALID iff it is needed by some VALID (or
// POTENTIALLY_OBSOLETE, since those are not yet safe to reclaim) backup.
// firstProtectedWAL is the begin_wal of the chronologically earliest
// non-OBSOLETE backup; segments at or after it (lexically, which for WAL
// names equals chronologically within a timeline) are VALID.
func WALClassification(segmentName, firstProtectedWAL string) Classification {
	if firstProtectedWAL == "" {
		return Obsolete
	}
	if segmentName >= firstProtectedWAL {
		return Valid
	}
	return Obsolete
}
