// Package catalog implements the in-memory index over on-disk backup
// metadata files for one server, keyed by backup id.
package catalog

import "time"

// Status is the backup state machine. Transitions:
//
//	EMPTY -> STARTED -> (WAITING_FOR_WALS | FAILED)
//	WAITING_FOR_WALS -> (DONE | FAILED)
//
// DONE and FAILED are terminal.
type Status string

const (
	// StatusEmpty is a freshly registered, not-yet-started record.
	StatusEmpty Status = "EMPTY"
	// StatusStarted means the transport has begun copying data.
	StatusStarted Status = "STARTED"
	// StatusWaitingForWALs means the copy finished and the backup needs
	// its WAL range to appear in the archive before it is restorable.
	StatusWaitingForWALs Status = "WAITING_FOR_WALS"
	// StatusDone is terminal: the backup is restorable.
	StatusDone Status = "DONE"
	// StatusFailed is terminal: the attempt did not complete.
	StatusFailed Status = "FAILED"
)

// StatusSet is an explicit filter of statuses; callers always pass one
// rather than relying on a default, per spec.
type StatusSet map[Status]struct{}

// Statuses builds a StatusSet from the given values.
func Statuses(s ...Status) StatusSet {
	set := make(StatusSet, len(s))
	for _, v := range s {
		set[v] = struct{}{}
	}
	return set
}

// Contains reports whether status is in the set. A nil/empty set matches nothing.
func (s StatusSet) Contains(status Status) bool {
	_, ok := s[status]
	return ok
}

// AnyStatus matches every status; used explicitly, never implicitly.
func AnyStatus() StatusSet {
	return Statuses(StatusEmpty, StatusStarted, StatusWaitingForWALs, StatusDone, StatusFailed)
}

// Transport identifies which strategy produced (or will produce) the backup.
type Transport string

const (
	TransportFileCopyRemote  Transport = "file-copy-remote"
	TransportDatabaseStream  Transport = "database-streaming"
	TransportPassiveMirror   Transport = "passive-mirror"
)

// Coordination identifies the database-side protocol used to delimit the
// consistent snapshot. Only meaningful for TransportFileCopyRemote.
type Coordination string

const (
	CoordinationExclusive  Coordination = "exclusive"
	CoordinationConcurrent Coordination = "concurrent"
	CoordinationNone       Coordination = ""
)

// KeepTarget is a manual retention override: tagging a backup as kept forces
// its retention classification to VALID regardless of policy.
type KeepTarget string

const (
	KeepNone       KeepTarget = ""
	KeepFull       KeepTarget = "full"
	KeepStandalone KeepTarget = "standalone"
)

// Tablespace is an immutable (name, numeric id, source path) triple.
type Tablespace struct {
	Name     string
	OID      uint32
	Location string
}

// WALLocation pins a point in the WAL stream: the segment holding it, the
// byte offset within that segment, and the raw LSN text the database
// reported (kept byte-for-byte for diagnostics even though segment+offset
// is what the engine computes from).
type WALLocation struct {
	Segment string
	Offset  int64
	LSN     string
}

// Backup is one entry in the catalog: a single backup attempt's metadata.
// It is identified by a sortable, second-resolution timestamp id.
type Backup struct {
	ID     string
	Name   *string // optional free-form label, independent of ID (infofile.py backup_name)
	Status Status

	Transport    Transport
	Coordination Coordination

	DatabaseVersion string
	DataDir         string
	Tablespaces     []Tablespace
	ConfigFiles     []string // config files outside the data directory, if any
	IncludedConfig  []string // config files copied alongside the data directory

	BeginWAL  WALLocation
	EndWAL    WALLocation
	Timeline  uint32
	WALSegSize int64

	BeginTime time.Time
	EndTime   time.Time

	SizeBytes           int64
	DeduplicatedBytes   int64

	Error string

	Label       []byte // embedded backup-label blob (concurrent coordination)
	SystemID    string
	KeepTarget  KeepTarget
}

// IsTerminal reports whether the backup is in a terminal status.
func (b *Backup) IsTerminal() bool {
	return b.Status == StatusDone || b.Status == StatusFailed
}

// Clone returns a deep-enough copy safe for a caller to mutate without
// affecting the catalog's stored copy (slices are copied; nested structs
// are value types).
func (b *Backup) Clone() *Backup {
	if b == nil {
		return nil
	}
	c := *b
	c.Tablespaces = append([]Tablespace(nil), b.Tablespaces...)
	c.ConfigFiles = append([]string(nil), b.ConfigFiles...)
	c.IncludedConfig = append([]string(nil), b.IncludedConfig...)
	if b.Label != nil {
		c.Label = append([]byte(nil), b.Label...)
	}
	if b.Name != nil {
		name := *b.Name
		c.Name = &name
	}
	return &c
}
