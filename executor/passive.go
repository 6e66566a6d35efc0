package executor

import (
	"context"
	"errors"

	"github.com/barmanhq/barman/catalog"
)

// ErrPassiveBackupDeclined is returned by PassiveMirror.BackupCopy: a
// passive node never runs its own backup, it only mirrors a primary's
// catalog via the Sync Engine.
var ErrPassiveBackupDeclined = errors.New("executor: passive node does not run backups, use sync-backup")

// PassiveMirror declines to run a local backup at all; backup() must never
// be invoked against a server configured this way.
type PassiveMirror struct{}

func (t *PassiveMirror) Name() catalog.Transport { return catalog.TransportPassiveMirror }

func (t *PassiveMirror) Check(ctx context.Context) error {
	return nil
}

func (t *PassiveMirror) BackupCopy(ctx context.Context, b *catalog.Backup) error {
	return ErrPassiveBackupDeclined
}
