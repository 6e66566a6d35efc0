package commands

import (
	"fmt"

	barman "github.com/barmanhq/barman"
	"github.com/spf13/cobra"
)

// switchWALCmd forces the database to roll to a new WAL file through
// whichever coordination the server's transport/coordination flags name.
// It requires a file-copy-remote transport: database-streaming and
// passive-mirror servers have no coordination to ask.
func switchWALCmd() *cobra.Command {
	var f *serverFlags
	var force bool
	cmd := &cobra.Command{
		Use:   "switch-wal <server>",
		Short: "Force the database to switch to a new WAL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = force
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			if srv.Manager.Executor == nil || srv.Manager.Executor.Coordination == nil {
				return &barman.ConfigError{Server: args[0], Reason: "switch-wal needs a file-copy-remote transport with a coordination configured"}
			}
			switched, err := srv.Manager.Executor.Coordination.SwitchWAL(cmd.Context())
			if err != nil {
				return fmt.Errorf("switch-wal: %w", err)
			}
			if switched {
				cmd.Println("The WAL file has been switched")
			} else {
				cmd.Println("No switch needed (server is in recovery)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "request a switch even if the database reports no pending WAL (documentary only, the switch request is always issued)")
	f = addServerFlags(cmd)
	return cmd
}

// receiveWALCmd is a thin control surface over an externally managed
// pg_receivewal process: barman-core doesn't itself speak the streaming
// replication protocol (see cmd/barman/pgconn's package doc), so this
// only reports that scope boundary rather than pretending to manage one.
func receiveWALCmd() *cobra.Command {
	var stop, reset, createSlot, dropSlot bool
	cmd := &cobra.Command{
		Use:   "receive-wal <server>",
		Short: "Control the streaming WAL receiver (requires an external pg_receivewal manager)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = stop
			_ = reset
			_ = createSlot
			_ = dropSlot
			return &barman.ConfigError{Server: args[0], Reason: "receive-wal requires an external pg_receivewal manager; barman-core only consumes its spool directory (see the streaming archiver)"}
		},
	}
	cmd.Flags().BoolVar(&stop, "stop", false, "stop the streaming receiver")
	cmd.Flags().BoolVar(&reset, "reset", false, "reset the receiver's saved position")
	cmd.Flags().BoolVar(&createSlot, "create-slot", false, "create the replication slot")
	cmd.Flags().BoolVar(&dropSlot, "drop-slot", false, "drop the replication slot")
	return cmd
}

// replicationStatusCmd reports the coordination's view of standby
// replication, probed through the configured connection script. Full
// per-standby detail (sent/write/flush/replay LSNs) requires a live
// pg_stat_replication query, which is out of scope for the external-script
// seam; this reports what the seam can answer today.
func replicationStatusCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "replication-status <server>",
		Short: "Report what the connection script can tell about standby replication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			if srv.Manager.Executor == nil || srv.Manager.Executor.Coordination == nil {
				return &barman.ConfigError{Server: args[0], Reason: "replication-status needs a file-copy-remote transport with a coordination configured"}
			}
			inRecovery, err := srv.Manager.Executor.Coordination.InRecovery(cmd.Context())
			if err != nil {
				return fmt.Errorf("replication-status: %w", err)
			}
			cmd.Printf("%s: in_recovery=%t\n", args[0], inRecovery)
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
