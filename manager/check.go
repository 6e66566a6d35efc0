package manager

import (
	"fmt"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/walcatalog"
)

// CheckBackup re-evaluates one backup's consistency against the archive's
// current contents and advances its status accordingly. It never reverses
// a terminal status and is a no-op on a backup still in progress (its
// end_wal is not yet known).
func (m *Manager) CheckBackup(b *catalog.Backup) error {
	if b.EndWAL.Segment == "" {
		return nil
	}

	latestPerTimeline, err := m.latestArchivedPerTimeline()
	if err != nil {
		return err
	}

	begin, err := walcatalog.Decode(b.BeginWAL.Segment)
	if err != nil {
		return fmt.Errorf("manager: decode begin_wal %q: %w", b.BeginWAL.Segment, err)
	}
	end, err := walcatalog.Decode(b.EndWAL.Segment)
	if err != nil {
		return fmt.Errorf("manager: decode end_wal %q: %w", b.EndWAL.Segment, err)
	}

	latest, ok := latestPerTimeline[b.Timeline]
	if !ok {
		// Case A: nothing archived yet on this timeline.
		b.Status = catalog.StatusWaitingForWALs
		return nil
	}
	if latest.Less(begin) {
		// Case B: the archive hasn't caught up to where this backup began.
		b.Status = catalog.StatusWaitingForWALs
		return nil
	}

	upper := end
	if latest.Less(end) {
		upper = latest
	}

	archived, err := m.archivedSegmentSet()
	if err != nil {
		return err
	}

	segments, err := walcatalog.GenerateRange(begin.String(), upper.String(), archivedSegSizeOrDefault(b))
	if err != nil {
		return fmt.Errorf("manager: generate required range: %w", err)
	}
	for _, seg := range segments {
		if _, present := archived[seg]; !present {
			// Case C: a segment inside the required range is missing.
			b.Status = catalog.StatusFailed
			b.Error = fmt.Sprintf("missing WAL segment %s", seg)
			return nil
		}
	}

	if !latest.Less(end) {
		// Case D: the archive has reached end_wal and every required
		// segment up to it is present.
		b.Status = catalog.StatusDone
		return nil
	}

	// Case E: everything up to latest is present, but latest hasn't
	// reached end_wal yet.
	b.Status = catalog.StatusWaitingForWALs
	return nil
}

func archivedSegSizeOrDefault(b *catalog.Backup) int64 {
	if b.WALSegSize > 0 {
		return b.WALSegSize
	}
	return 16 * 1024 * 1024
}

// latestArchivedPerTimeline scans the journal and returns, for each
// timeline with at least one archived plain segment, the greatest segment
// name on it.
func (m *Manager) latestArchivedPerTimeline() (map[uint32]walcatalog.Name, error) {
	records, err := m.WALJournal.Scan()
	if err != nil {
		return nil, fmt.Errorf("manager: scan WAL journal: %w", err)
	}

	latest := make(map[uint32]walcatalog.Name)
	for _, r := range records {
		plain, _ := stripCompressionExt(r.Name)
		if !walcatalog.IsWAL(plain) {
			continue
		}
		name, err := walcatalog.Decode(plain)
		if err != nil {
			continue
		}
		if cur, ok := latest[name.Timeline]; !ok || cur.Less(name) {
			latest[name.Timeline] = name
		}
	}
	return latest, nil
}

// archivedSegmentSet returns the set of plain segment names present in the
// journal, ignoring compression suffixes and non-WAL entries.
func (m *Manager) archivedSegmentSet() (map[string]struct{}, error) {
	records, err := m.WALJournal.Scan()
	if err != nil {
		return nil, fmt.Errorf("manager: scan WAL journal: %w", err)
	}
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		plain, _ := stripCompressionExt(r.Name)
		if walcatalog.IsWAL(plain) {
			set[plain] = struct{}{}
		}
	}
	return set, nil
}
