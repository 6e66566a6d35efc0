package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/security"
	"github.com/barmanhq/barman/syncengine"
)

// readSnapshot decodes a syncengine.Snapshot from stdin, unwrapping a
// security.Envelope first if the server has sync-channel signing
// configured. This is the passive side's half of the primary/passive
// pairing Cron's subprocess dispatch in syncengine/cron.go drives: a
// primary-side sync-info is piped into a passive-side sync-backup or
// sync-wals over whatever transport carries it there.
func readSnapshot(cmd *cobra.Command, srv interface {
	CanSeal() bool
	OpenSnapshot(*security.Envelope) (*syncengine.Snapshot, error)
}) (*syncengine.Snapshot, error) {
	dec := json.NewDecoder(cmd.InOrStdin())
	if srv.CanSeal() {
		var env security.Envelope
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		return srv.OpenSnapshot(&env)
	}
	var snap syncengine.Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func syncInfoCmd() *cobra.Command {
	var f *serverFlags
	var primary bool
	cmd := &cobra.Command{
		Use:   "sync-info <server> [last_wal] [last_position]",
		Short: "Emit this server's current sync snapshot",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = primary
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			var lastName string
			var lastPosition int64
			if len(args) >= 2 {
				lastName = args[1]
			}
			if len(args) >= 3 {
				lastPosition, err = strconv.ParseInt(args[2], 10, 64)
				if err != nil {
					return fmt.Errorf("sync-info: bad last_position %q: %w", args[2], err)
				}
			}

			snap, err := srv.BuildSnapshot(lastName, lastPosition)
			if err != nil {
				return fmt.Errorf("sync-info: %w", err)
			}

			if srv.CanSeal() {
				env, err := srv.SealSnapshot(snap)
				if err != nil {
					return fmt.Errorf("sync-info: %w", err)
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(env)
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(snap)
		},
	}
	cmd.Flags().BoolVar(&primary, "primary", false, "this invocation targets the primary node (documentary only: server identity still comes from the positional argument)")
	f = addServerFlags(cmd)
	return cmd
}

func syncBackupCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "sync-backup <server> <backup-id>",
		Short: "Pull one backup from a primary's sync snapshot read on stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			snap, err := readSnapshot(cmd, srv)
			if err != nil {
				return fmt.Errorf("sync-backup: %w", err)
			}
			if err := srv.SyncBackup(cmd.Context(), args[1], snap); err != nil {
				return fmt.Errorf("sync-backup: %w", err)
			}
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}

func syncWalsCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "sync-wals <server>",
		Short: "Pull every new WAL segment from a primary's sync snapshot read on stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			snap, err := readSnapshot(cmd, srv)
			if err != nil {
				return fmt.Errorf("sync-wals: %w", err)
			}
			if err := srv.SyncWALs(cmd.Context(), snap); err != nil {
				return fmt.Errorf("sync-wals: %w", err)
			}
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
