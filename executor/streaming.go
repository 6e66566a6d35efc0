package executor

import (
	"context"
	"fmt"

	"github.com/barmanhq/barman/catalog"
)

// StreamingBackupTool is the subset of a native streaming-backup client
// the DatabaseStreaming transport drives; a thin seam so tests can swap in
// a fake without a real database connection.
type StreamingBackupTool interface {
	// SupportsBandwidthLimit reports whether the underlying tool accepts
	// a bandwidth-limit flag at all.
	SupportsBandwidthLimit() bool

	// Run performs the streaming backup into destDir, remapping
	// tablespaces under it, and returns the resulting on-disk size.
	Run(ctx context.Context, destDir string, b *catalog.Backup) (sizeBytes int64, err error)
}

// DatabaseStreaming transport config. Several combinations are forbidden
// by the database-side streaming protocol and are rejected at
// configuration time rather than failing mid-backup.
type DatabaseStreaming struct {
	Tool StreamingBackupTool

	PerTablespaceBandwidthLimit bool
	ReuseMode                   string // "none" or non-"none"; compared as a string to avoid an import cycle with copier
	NetworkCompression          bool
	BandwidthLimit              int64

	DestDir string
}

func (t *DatabaseStreaming) Name() catalog.Transport { return catalog.TransportDatabaseStream }

func (t *DatabaseStreaming) Check(ctx context.Context) error {
	if t.PerTablespaceBandwidthLimit {
		return fmt.Errorf("database streaming backup does not support a per-tablespace bandwidth cap")
	}
	if t.ReuseMode != "" && t.ReuseMode != "none" {
		return fmt.Errorf("database streaming backup does not support incremental reuse")
	}
	if t.NetworkCompression {
		return fmt.Errorf("database streaming backup does not support network compression")
	}
	if t.BandwidthLimit > 0 && t.Tool != nil && !t.Tool.SupportsBandwidthLimit() {
		return fmt.Errorf("configured streaming backup tool does not support a bandwidth limit")
	}
	return nil
}

func (t *DatabaseStreaming) BackupCopy(ctx context.Context, b *catalog.Backup) error {
	if err := t.Check(ctx); err != nil {
		return err
	}
	if len(b.ConfigFiles) > 0 {
		b.Error = fmt.Sprintf("manually back up these configuration files: %v", b.ConfigFiles)
	}
	size, err := t.Tool.Run(ctx, t.DestDir, b)
	if err != nil {
		return err
	}
	b.SizeBytes = size
	return nil
}
