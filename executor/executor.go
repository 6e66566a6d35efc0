// Package executor runs one backup attempt end-to-end by dispatching over
// two orthogonal axes: which transport moves the bytes, and (for the
// file-copy transport) which database-side protocol delimits the
// consistent snapshot.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/internal/logger"
)

// DatabaseProbe is the executor's view of the running database: metadata
// discovery plus the begin/end-of-backup protocol. Each Coordination
// implements it differently (exclusive vs concurrent commands); the
// DatabaseStreaming and PassiveMirror transports use a reduced subset.
type DatabaseProbe interface {
	// Metadata reports the facts startBackup needs to populate a Backup:
	// data directory, version string, tablespaces, config file paths, and
	// WAL segment size.
	Metadata(ctx context.Context) (Metadata, error)

	// InRecovery reports whether the database is currently a standby.
	InRecovery(ctx context.Context) (bool, error)

	// StartBackup issues the begin-of-backup request and returns the
	// starting WAL location.
	StartBackup(ctx context.Context, label string) (StartResult, error)

	// StopBackup issues the end-of-backup request and returns the ending
	// WAL location plus (for concurrent coordination) the backup-label
	// blob and tablespace mapping.
	StopBackup(ctx context.Context) (StopResult, error)

	// SwitchWAL asks the database to roll to a new WAL file; a no-op that
	// returns (false, nil) when the database is in recovery.
	SwitchWAL(ctx context.Context) (switched bool, err error)

	// SystemID returns the database's unique system identifier, which is
	// recorded on the backup's metadata.
	SystemID(ctx context.Context) (string, error)
}

// Metadata is what startBackup probes from the running database.
type Metadata struct {
	DataDir         string
	DatabaseVersion string
	Tablespaces     []catalog.Tablespace
	ConfigFiles     []string
	WALSegSize      int64
}

// StartResult is the outcome of the begin-of-backup request.
type StartResult struct {
	WAL   catalog.WALLocation
	Label []byte // not set by Exclusive or Concurrent; the label arrives in StopResult
}

// StopResult is the outcome of the end-of-backup request.
type StopResult struct {
	WAL              catalog.WALLocation
	Timeline         uint32
	Label            []byte
	TablespaceMapping []TablespaceMapEntry
}

// TablespaceMapEntry is one line of the tablespace_map file written
// alongside a concurrent backup's label.
type TablespaceMapEntry struct {
	OID      uint32
	Location string
}

// EncodeTablespaceMap renders entries in the on-disk format: one line per
// tablespace, "<oid> <escapedLocation>", where newline and carriage return
// in the path are backslash-escaped.
func EncodeTablespaceMap(entries []TablespaceMapEntry) []byte {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%d %s\n", e.OID, escapeTablespacePath(e.Location)))
	}
	return []byte(sb.String())
}

func escapeTablespacePath(path string) string {
	path = strings.ReplaceAll(path, "\r", `\r`)
	path = strings.ReplaceAll(path, "\n", `\n`)
	return path
}

// Transport is the data-movement strategy for a backup attempt.
type Transport interface {
	// BackupCopy performs the actual data transfer once the consistent
	// snapshot has been delimited (or, for DatabaseStreaming, performs
	// the streaming backup itself end to end).
	BackupCopy(ctx context.Context, b *catalog.Backup) error

	// Check validates the transport's preconditions (tool availability,
	// forbidden configuration combinations) without performing a backup.
	Check(ctx context.Context) error

	// Name identifies the transport for logging and metrics.
	Name() catalog.Transport
}

// Coordination delimits the consistent on-disk snapshot for the
// FileCopyRemote transport. DatabaseStreaming and PassiveMirror do not use
// a Coordination; Executor.Execute skips coordination calls for them.
type Coordination interface {
	DatabaseProbe
	Name() catalog.Coordination
}

// Executor runs one backup attempt: coordination (if any), transport copy,
// catalog persistence, and first-backup WAL reclamation.
type Executor struct {
	Transport    Transport
	Coordination Coordination // nil for DatabaseStreaming / PassiveMirror

	// Persist is called immediately after startBackup populates the
	// Backup, so a crash mid-copy leaves a recoverable trace.
	Persist func(*catalog.Backup) error

	// ReclaimWALBefore is invoked only for the server's first-ever backup,
	// to drop WAL segments that cannot belong to any restorable backup.
	ReclaimWALBefore func(segmentName string) error
}

// Execute runs the full common contract described by the executor's
// design: startBackup, optional first-backup reclamation, backupCopy,
// stopBackup — tagging the backup FAILED with a descriptive error on any
// step's failure.
func (e *Executor) Execute(ctx context.Context, b *catalog.Backup, isFirstBackup bool) error {
	action := "initializing"
	fail := func(err error) error {
		b.Status = catalog.StatusFailed
		b.Error = fmt.Sprintf("failure %s (%s)", action, firstLine(err))
		return err
	}

	if e.Coordination != nil {
		action = "checking preconditions"
		inRecovery, err := e.Coordination.InRecovery(ctx)
		if err != nil {
			return fail(err)
		}
		if inRecovery && e.Coordination.Name() == catalog.CoordinationExclusive {
			return fail(fmt.Errorf("database is in recovery, exclusive backup requires a primary"))
		}
	}

	action = "starting backup"
	if err := e.startBackup(ctx, b); err != nil {
		return fail(err)
	}

	if err := e.Persist(b); err != nil {
		return fail(fmt.Errorf("persisting backup metadata: %w", err))
	}

	if isFirstBackup && e.ReclaimWALBefore != nil {
		action = "reclaiming pre-backup WAL"
		if err := e.ReclaimWALBefore(b.BeginWAL.Segment); err != nil {
			logger.Log.Warn("executor: first-backup WAL reclamation failed: {error}", err)
		}
	}

	action = "copying data"
	if err := e.Transport.BackupCopy(ctx, b); err != nil {
		return fail(err)
	}

	action = "stopping backup"
	if err := e.stopBackup(ctx, b); err != nil {
		stopErr := fail(err)
		return stopErr
	}

	b.Status = catalog.StatusWaitingForWALs
	b.EndTime = time.Now().UTC()
	return nil
}

func (e *Executor) startBackup(ctx context.Context, b *catalog.Backup) error {
	if e.Coordination == nil {
		return nil
	}
	meta, err := e.Coordination.Metadata(ctx)
	if err != nil {
		return err
	}
	b.DataDir = meta.DataDir
	b.DatabaseVersion = meta.DatabaseVersion
	b.Tablespaces = meta.Tablespaces
	b.ConfigFiles = meta.ConfigFiles
	b.WALSegSize = meta.WALSegSize

	sysID, err := e.Coordination.SystemID(ctx)
	if err != nil {
		return err
	}
	b.SystemID = sysID

	label := fmt.Sprintf("barman backup %s", b.ID)
	res, err := e.Coordination.StartBackup(ctx, label)
	if err != nil {
		return err
	}
	b.BeginWAL = res.WAL
	b.Label = res.Label
	b.BeginTime = time.Now().UTC()
	b.Status = catalog.StatusStarted
	return nil
}

func (e *Executor) stopBackup(ctx context.Context, b *catalog.Backup) error {
	if e.Coordination == nil {
		return nil
	}
	res, err := e.Coordination.StopBackup(ctx)
	stopErrs := []error{}
	if err != nil {
		stopErrs = append(stopErrs, err)
	} else {
		b.EndWAL = res.WAL
		b.Timeline = res.Timeline
		if res.Label != nil {
			b.Label = res.Label
		}
	}

	switched, swErr := e.Coordination.SwitchWAL(ctx)
	if swErr != nil {
		stopErrs = append(stopErrs, fmt.Errorf("switching WAL after stop: %w", swErr))
	} else if switched {
		logger.Log.Info("executor: switched WAL after stopping backup {id}", b.ID)
	}

	if len(stopErrs) > 0 {
		return joinErrors(stopErrs)
	}
	return nil
}

func firstLine(err error) string {
	s := err.Error()
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
