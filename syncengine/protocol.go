// Package syncengine mirrors the catalog of a primary barman node onto a
// passive one: a primary-side snapshot builder and a passive-side engine
// that decides what to pull and drives the Copy Controller per backup and
// per WAL batch.
package syncengine

import (
	"time"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/walcatalog"
)

// ProtocolVersion is stamped into every Snapshot so a passive node can
// reject a primary speaking an incompatible wire format.
const ProtocolVersion = "1"

// BackupDTO is the wire representation of one catalog.Backup. It is a
// separate type from catalog.Backup rather than a JSON-tagged alias of it:
// the sync protocol is a stable cross-node contract and shouldn't move
// every time the in-memory struct gains a field.
type BackupDTO struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Transport       string `json:"transport"`
	Coordination    string `json:"coordination"`
	DatabaseVersion string `json:"database_version"`
	BeginWAL        string `json:"begin_wal"`
	EndWAL          string `json:"end_wal"`
	Timeline        uint32 `json:"timeline"`
	WALSegSize      int64  `json:"wal_segment_size"`
	BeginTime       int64  `json:"begin_time"`
	EndTime         int64  `json:"end_time"`
	SizeBytes       int64  `json:"size_bytes"`
	SystemID        string `json:"system_id"`
	KeepTarget      string `json:"keep_target,omitempty"`
}

// WALDTO is the wire representation of one walcatalog.Record.
type WALDTO struct {
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	Time        float64 `json:"time"`
	Compression string  `json:"compression,omitempty"`
}

// Snapshot is the full sync-info payload: a server's current backup
// catalog plus the WAL journal tail strictly after (LastName, LastPosition)
// as the passive node last saw it.
type Snapshot struct {
	Version      string            `json:"version"`
	Config       map[string]string `json:"config"`
	Backups      map[string]BackupDTO `json:"backups"`
	Wals         []WALDTO          `json:"wals"`
	LastName     string            `json:"last_name"`
	LastPosition int64             `json:"last_position"`
}

func toBackupDTO(b *catalog.Backup) BackupDTO {
	dto := BackupDTO{
		ID:              b.ID,
		Status:          string(b.Status),
		Transport:       string(b.Transport),
		Coordination:    string(b.Coordination),
		DatabaseVersion: b.DatabaseVersion,
		BeginWAL:        b.BeginWAL.Segment,
		EndWAL:          b.EndWAL.Segment,
		Timeline:        b.Timeline,
		WALSegSize:      b.WALSegSize,
		SizeBytes:       b.SizeBytes,
		SystemID:        b.SystemID,
		KeepTarget:      string(b.KeepTarget),
	}
	if !b.BeginTime.IsZero() {
		dto.BeginTime = b.BeginTime.Unix()
	}
	if !b.EndTime.IsZero() {
		dto.EndTime = b.EndTime.Unix()
	}
	return dto
}

func fromBackupDTO(dto BackupDTO) *catalog.Backup {
	b := &catalog.Backup{
		ID:              dto.ID,
		Status:          catalog.Status(dto.Status),
		Transport:       catalog.Transport(dto.Transport),
		Coordination:    catalog.Coordination(dto.Coordination),
		DatabaseVersion: dto.DatabaseVersion,
		BeginWAL:        catalog.WALLocation{Segment: dto.BeginWAL},
		EndWAL:          catalog.WALLocation{Segment: dto.EndWAL},
		Timeline:        dto.Timeline,
		WALSegSize:      dto.WALSegSize,
		SizeBytes:       dto.SizeBytes,
		SystemID:        dto.SystemID,
		KeepTarget:      catalog.KeepTarget(dto.KeepTarget),
	}
	if dto.BeginTime > 0 {
		b.BeginTime = time.Unix(dto.BeginTime, 0).UTC()
	}
	if dto.EndTime > 0 {
		b.EndTime = time.Unix(dto.EndTime, 0).UTC()
	}
	return b
}

func toWALDTO(r walcatalog.Record) WALDTO {
	return WALDTO{
		Name:        r.Name,
		Size:        r.Size,
		Time:        float64(r.ModTime.Unix()),
		Compression: r.Compression,
	}
}

func fromWALDTO(w WALDTO) walcatalog.Record {
	return walcatalog.Record{
		Name:        w.Name,
		Size:        w.Size,
		ModTime:     time.Unix(int64(w.Time), 0).UTC(),
		Compression: w.Compression,
	}
}
