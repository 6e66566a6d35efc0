package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/catalog"
)

func showBackupCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "show-backup <server> <backup-id>",
		Short: "Show one backup's catalog entry in detail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			b, err := srv.Catalog.Get(args[1])
			if err != nil {
				return fmt.Errorf("show-backup: %w", err)
			}

			cmd.Printf("Backup %s:\n", b.ID)
			cmd.Printf("  Status:          %s\n", b.Status)
			cmd.Printf("  Transport:       %s\n", b.Transport)
			cmd.Printf("  Coordination:    %s\n", b.Coordination)
			cmd.Printf("  Database ver.:   %s\n", b.DatabaseVersion)
			cmd.Printf("  Begin time:      %s\n", b.BeginTime.Format("2006-01-02 15:04:05 MST"))
			if !b.EndTime.IsZero() {
				cmd.Printf("  End time:        %s\n", b.EndTime.Format("2006-01-02 15:04:05 MST"))
			}
			cmd.Printf("  Begin WAL:       %s\n", b.BeginWAL.Segment)
			cmd.Printf("  End WAL:         %s\n", b.EndWAL.Segment)
			cmd.Printf("  Timeline:        %d\n", b.Timeline)
			cmd.Printf("  Size:            %d bytes\n", b.SizeBytes)
			if b.DeduplicatedBytes > 0 {
				cmd.Printf("  Deduplicated:    %d bytes\n", b.DeduplicatedBytes)
			}
			if len(b.Tablespaces) > 0 {
				cmd.Println("  Tablespaces:")
				for _, ts := range b.Tablespaces {
					cmd.Printf("    %s (oid %d): %s\n", ts.Name, ts.OID, ts.Location)
				}
			}
			if b.Error != "" {
				cmd.Printf("  Error:           %s\n", b.Error)
			}
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}

func showServerCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "show-server <server>",
		Short: "Show a server's configuration and catalog summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			baseDir, walDir, lockDir := serverDirs(args[0])
			backups := srv.Catalog.Available(catalog.AnyStatus())

			cmd.Printf("Server %s:\n", args[0])
			cmd.Printf("  Base directory:  %s\n", baseDir)
			cmd.Printf("  WAL directory:   %s\n", walDir)
			cmd.Printf("  Lock directory:  %s\n", lockDir)
			cmd.Printf("  Transport:       %s\n", f.transport)
			cmd.Printf("  Passive of:      %s\n", valueOrNone(f.passiveOf))
			cmd.Printf("  Backups:         %d\n", len(backups))
			if last := srv.Catalog.Last(catalog.Statuses(catalog.StatusDone)); last != nil {
				cmd.Printf("  Last backup:     %s\n", last.ID)
			}
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none, this is a primary)"
	}
	return s
}
