package server

import (
	"context"
	"fmt"

	"github.com/barmanhq/barman/security"
	"github.com/barmanhq/barman/syncengine"
)

// BuildSnapshot produces this server's current sync-info payload: its
// backup catalog plus the WAL journal tail strictly after
// (lastName, lastPosition) as a passive node last saw it. It is the
// primary-side half of the sync protocol; how the resulting Snapshot
// reaches the passive node (SSH, a barman-specific RPC, shared storage)
// is the opaque transport capability spec.md's scope notes exclude.
func (s *Server) BuildSnapshot(lastName string, lastPosition int64) (*syncengine.Snapshot, error) {
	return syncengine.BuildSnapshot(s.Catalog, s.Manager.WALJournal, nil, lastName, lastPosition)
}

// SealSnapshot wraps snap in a signed (and, if configured, encrypted)
// envelope for transit, using the sync-channel signer/encryptor set by
// WithSyncChannelSecurity. It returns an error when no signer is
// configured; CanSeal reports whether one is.
func (s *Server) SealSnapshot(snap *syncengine.Snapshot) (*security.Envelope, error) {
	if s.cfg.Signer == nil {
		return nil, fmt.Errorf("server: sync-channel signing is not configured for %s", s.Name)
	}
	return security.SealJSON(s.cfg.Signer, s.cfg.Encryptor, snap)
}

// CanSeal reports whether SealSnapshot/OpenSnapshot have a signer to work
// with.
func (s *Server) CanSeal() bool {
	return s.cfg.Signer != nil
}

// OpenSnapshot verifies env's signature and, if encrypted, decrypts it,
// returning the enclosed Snapshot. The passive-side counterpart to
// SealSnapshot.
func (s *Server) OpenSnapshot(env *security.Envelope) (*syncengine.Snapshot, error) {
	if s.cfg.Signer == nil {
		return nil, fmt.Errorf("server: sync-channel signing is not configured for %s", s.Name)
	}
	var snap syncengine.Snapshot
	if err := security.OpenJSON(s.cfg.Signer, s.cfg.Encryptor, env, &snap); err != nil {
		return nil, fmt.Errorf("server: open sync snapshot: %w", err)
	}
	return &snap, nil
}

// SyncBackup applies the passive-side decision matrix for one backup id
// against an already-fetched remote snapshot.
func (s *Server) SyncBackup(ctx context.Context, id string, remote *syncengine.Snapshot) error {
	if s.SyncEngine == nil {
		return fmt.Errorf("server: %s is not configured as a passive node", s.Name)
	}
	return s.SyncEngine.SyncBackup(ctx, id, remote)
}

// SyncWALs pulls every WAL record in remote that this node doesn't have
// yet.
func (s *Server) SyncWALs(ctx context.Context, remote *syncengine.Snapshot) error {
	if s.SyncEngine == nil {
		return fmt.Errorf("server: %s is not configured as a passive node", s.Name)
	}
	return s.SyncEngine.SyncWals(ctx, remote, s.cfg.SyncCompression)
}
