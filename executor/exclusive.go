package executor

import (
	"context"
	"fmt"

	"github.com/barmanhq/barman/catalog"
)

// DatabaseConn is the minimal command surface Exclusive and Concurrent
// coordination drive against the running database. It is intentionally
// narrow: issuing the begin/end-of-backup commands, probing metadata, and
// requesting a WAL switch — the parts of the protocol that differ between
// coordination modes.
type DatabaseConn interface {
	Probe(ctx context.Context) (Metadata, error)
	InRecovery(ctx context.Context) (bool, error)
	SystemID(ctx context.Context) (string, error)
	ExecBeginBackup(ctx context.Context, label string, exclusive bool) (rawLSN string, timeline uint32, err error)
	ExecEndBackup(ctx context.Context, exclusive bool) (rawLSN string, timeline uint32, label []byte, tablespaceMap []TablespaceMapEntry, err error)
	ExecSwitchWAL(ctx context.Context) (segment string, err error)
}

// Exclusive coordination uses the "exclusive backup" pair of database
// commands. It requires a primary: the precheck in Executor.Execute
// already rejects a standby before StartBackup is called.
type Exclusive struct {
	Conn       DatabaseConn
	WALSegSize int64
}

func (c *Exclusive) Name() catalog.Coordination { return catalog.CoordinationExclusive }

func (c *Exclusive) Metadata(ctx context.Context) (Metadata, error) {
	return c.Conn.Probe(ctx)
}

func (c *Exclusive) InRecovery(ctx context.Context) (bool, error) {
	return c.Conn.InRecovery(ctx)
}

func (c *Exclusive) SystemID(ctx context.Context) (string, error) {
	return c.Conn.SystemID(ctx)
}

func (c *Exclusive) StartBackup(ctx context.Context, label string) (StartResult, error) {
	rawLSN, timeline, err := c.Conn.ExecBeginBackup(ctx, label, true)
	if err != nil {
		return StartResult{}, fmt.Errorf("exclusive begin backup: %w", err)
	}
	wal, err := locationFromLSN(rawLSN, timeline, c.WALSegSize)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{WAL: wal}, nil
}

func (c *Exclusive) StopBackup(ctx context.Context) (StopResult, error) {
	rawLSN, timeline, _, _, err := c.Conn.ExecEndBackup(ctx, true)
	if err != nil {
		return StopResult{}, fmt.Errorf("exclusive end backup: %w", err)
	}
	var wal catalog.WALLocation
	if timeline != 0 {
		var derivErr error
		wal, derivErr = locationFromLSN(rawLSN, timeline, c.WALSegSize)
		if derivErr != nil {
			return StopResult{}, derivErr
		}
	} else {
		wal = catalog.WALLocation{LSN: rawLSN}
	}
	return StopResult{WAL: wal, Timeline: timeline}, nil
}

func (c *Exclusive) SwitchWAL(ctx context.Context) (bool, error) {
	inRecovery, err := c.Conn.InRecovery(ctx)
	if err != nil {
		return false, err
	}
	if inRecovery {
		return false, nil
	}
	if _, err := c.Conn.ExecSwitchWAL(ctx); err != nil {
		return false, err
	}
	return true, nil
}
