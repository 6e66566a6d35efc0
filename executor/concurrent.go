package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/barmanhq/barman/catalog"
)

// ConfigError mirrors barman.ConfigError locally to avoid an import cycle
// with the root package (which will in turn depend on executor through
// manager/server); manager translates this into barman.ConfigError when
// surfacing it to the CLI.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("executor: configuration error: %s", e.Reason)
}

// Concurrent coordination uses the database's native concurrent-backup API
// on versions that have it; older versions require a server-side helper
// extension, checked for at configuration time.
type Concurrent struct {
	Conn                     DatabaseConn
	WALSegSize               int64
	NativeAPISupported       bool
	HelperExtensionInstalled bool

	// LabelDestDir is where the backup-label blob and tablespace_map file
	// are written once stop() retrieves them; it must be the root of the
	// data-directory copy the transport produced.
	LabelDestDir string
}

func (c *Concurrent) Name() catalog.Coordination { return catalog.CoordinationConcurrent }

func (c *Concurrent) Check(ctx context.Context) error {
	if !c.NativeAPISupported && !c.HelperExtensionInstalled {
		return &ConfigError{Reason: "concurrent backup requires either the native concurrent-backup API or the barman helper extension, and neither is available"}
	}
	return nil
}

func (c *Concurrent) Metadata(ctx context.Context) (Metadata, error) {
	return c.Conn.Probe(ctx)
}

func (c *Concurrent) InRecovery(ctx context.Context) (bool, error) {
	return c.Conn.InRecovery(ctx)
}

func (c *Concurrent) SystemID(ctx context.Context) (string, error) {
	return c.Conn.SystemID(ctx)
}

func (c *Concurrent) StartBackup(ctx context.Context, label string) (StartResult, error) {
	if err := c.Check(ctx); err != nil {
		return StartResult{}, err
	}
	rawLSN, timeline, err := c.Conn.ExecBeginBackup(ctx, label, false)
	if err != nil {
		return StartResult{}, fmt.Errorf("concurrent begin backup: %w", err)
	}
	wal, err := locationFromLSN(rawLSN, timeline, c.WALSegSize)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{WAL: wal}, nil
}

func (c *Concurrent) StopBackup(ctx context.Context) (StopResult, error) {
	rawLSN, timeline, label, tsMap, err := c.Conn.ExecEndBackup(ctx, false)
	if err != nil {
		return StopResult{}, fmt.Errorf("concurrent end backup: %w", err)
	}
	wal, err := locationFromLSN(rawLSN, timeline, c.WALSegSize)
	if err != nil {
		return StopResult{}, err
	}

	if c.LabelDestDir != "" {
		if err := c.writeLabelAndMap(label, tsMap); err != nil {
			return StopResult{}, fmt.Errorf("writing backup label/tablespace map: %w", err)
		}
	}

	return StopResult{WAL: wal, Timeline: timeline, Label: label, TablespaceMapping: tsMap}, nil
}

func (c *Concurrent) writeLabelAndMap(label []byte, tsMap []TablespaceMapEntry) error {
	if len(label) > 0 {
		if err := os.WriteFile(filepath.Join(c.LabelDestDir, "backup_label"), label, 0o640); err != nil {
			return err
		}
	}
	if len(tsMap) > 0 {
		encoded := EncodeTablespaceMap(tsMap)
		if err := os.WriteFile(filepath.Join(c.LabelDestDir, "tablespace_map"), encoded, 0o640); err != nil {
			return err
		}
	}
	return nil
}

func (c *Concurrent) SwitchWAL(ctx context.Context) (bool, error) {
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
