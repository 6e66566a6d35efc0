package syncengine

import (
	"fmt"

	barman "github.com/barmanhq/barman"
	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/walcatalog"
)

// BuildSnapshot is the primary side of sync-info: it produces everything a
// passive node needs to catch up its mirror of this server, incrementally
// when the caller already has a baseline.
//
// lastName/lastPosition identify how far the passive node has already read
// the WAL journal: lastPosition is the byte offset to resume from, and
// lastName is the segment immediately preceding that offset, used only to
// detect a stale or corrupt baseline. The zero value of both means "from
// the beginning."
func BuildSnapshot(cat *catalog.Catalog, journal *walcatalog.Journal, config map[string]string, lastName string, lastPosition int64) (*Snapshot, error) {
	offsets, err := journal.ScanOffsets()
	if err != nil {
		return nil, fmt.Errorf("syncengine: scan journal: %w", err)
	}

	resumeIdx, ok := findResumeIndex(offsets, lastName, lastPosition)
	if !ok {
		return nil, &barman.SyncError{Message: fmt.Sprintf("wal %q at position %d not found in journal", lastName, lastPosition)}
	}

	wals := make([]WALDTO, 0, len(offsets)-resumeIdx)
	for _, r := range offsets[resumeIdx:] {
		wals = append(wals, toWALDTO(r.Record))
	}

	newLastName, newLastPosition := "", int64(0)
	if len(offsets) > 0 {
		last := offsets[len(offsets)-1]
		newLastName = last.Name
		newLastPosition = last.End
	}

	backups := make(map[string]BackupDTO)
	for _, b := range cat.Available(catalog.AnyStatus()) {
		backups[b.ID] = toBackupDTO(b)
	}

	return &Snapshot{
		Version:      ProtocolVersion,
		Config:       config,
		Backups:      backups,
		Wals:         wals,
		LastName:     newLastName,
		LastPosition: newLastPosition,
	}, nil
}

// findResumeIndex locates the first journal record the passive node does
// not yet have. (lastName, lastPosition) both zero means nothing has been
// consumed; otherwise lastPosition must land exactly on a record boundary
// whose preceding record is named lastName, or the baseline is rejected as
// unrecognizable rather than silently resyncing from scratch.
func findResumeIndex(offsets []walcatalog.OffsetRecord, lastName string, lastPosition int64) (int, bool) {
	if lastName == "" && lastPosition == 0 {
		return 0, true
	}
	for i, r := range offsets {
		if r.Start != lastPosition {
			continue
		}
		if i == 0 {
			return 0, false
		}
		if offsets[i-1].Name == lastName {
			return i, true
		}
	}
	if lastPosition == offsetAfterAll(offsets) {
		if len(offsets) == 0 {
			return 0, false
		}
		if offsets[len(offsets)-1].Name == lastName {
			return len(offsets), true
		}
	}
	return 0, false
}

func offsetAfterAll(offsets []walcatalog.OffsetRecord) int64 {
	if len(offsets) == 0 {
		return 0
	}
	return offsets[len(offsets)-1].End
}
