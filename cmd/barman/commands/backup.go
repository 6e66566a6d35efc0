package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/internal/logger"
)

func backupCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "backup <server>",
		Short: "Take a base backup of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			b, err := srv.Backup(cmd.Context())
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			logger.Log.Info("backup {id} completed, status {status}", b.ID, string(b.Status))
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
