package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/server"
)

func archiveWALCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "archive-wal <server>",
		Short: "Drain the incoming and streaming spool directories into the WAL archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivers, err := defaultArchivers(args[0])
			if err != nil {
				return err
			}
			srv, err := newServer(f, args[0], server.WithArchivers(archivers...))
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.ArchiveWAL(cmd.Context()); err != nil {
				return fmt.Errorf("archive-wal: %w", err)
			}
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
