// Package copier executes a bulk file copy job with safe resumability: the
// Backup Executor's transport implementations hand it a list of items
// (tablespaces, the data directory, pg_control, external config) and it
// copies them in the fixed order the database's crash-safety depends on.
package copier

import "time"

// Class tags an item by what kind of data it carries, fixing the order
// items are copied in: every tablespace, then pgdata, then pg_control,
// then external config.
type Class int

const (
	ClassTablespace Class = iota
	ClassPgData
	ClassPgControl
	ClassConfig
	// ClassMirror tags a whole-tree copy that isn't part of a live backup's
	// fixed crash-safety order — the Sync Engine's passive-side pull of a
	// primary's backup directory. It sorts after every other class.
	ClassMirror
)

func (c Class) String() string {
	switch c {
	case ClassTablespace:
		return "tablespace"
	case ClassPgData:
		return "pgdata"
	case ClassPgControl:
		return "pgcontrol"
	case ClassConfig:
		return "config"
	case ClassMirror:
		return "mirror"
	default:
		return "unknown"
	}
}

// classOrder is the fixed copy order: lower index copies first.
var classOrder = map[Class]int{
	ClassTablespace: 0,
	ClassPgData:     1,
	ClassPgControl:  2,
	ClassConfig:     3,
	ClassMirror:     4,
}

// ReuseMode controls how much of a previous backup's on-disk copy is
// reused instead of re-transferred.
type ReuseMode int

const (
	ReuseNone ReuseMode = iota
	ReuseCopy
	ReuseLink
)

// Item is one unit of work in a copy Job: either a directory (recursively
// copied, subject to include/exclude patterns) or a single file.
type Item struct {
	Label       string
	Class       Class
	IsDirectory bool

	Source      string
	Destination string

	// Directory-only fields.
	Include           []string
	Exclude           []string
	ExcludeAndProtect []string
	BandwidthLimit    int64 // bytes/sec, 0 = unlimited
	ReuseSource       string

	// File-only fields.
	Optional bool
}

// Stats is the result of running a Job: total wall-clock time and
// per-class byte counts.
type Stats struct {
	Duration     time.Duration
	BytesByClass map[Class]int64
	FilesCopied  int
	FilesSkipped int
	FilesLinked  int
}
