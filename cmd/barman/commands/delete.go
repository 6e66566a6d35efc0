package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/internal/logger"
)

func deleteCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "delete <server> <backup-id>",
		Short: "Remove a backup and reclaim the WAL it alone protected",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.Delete(cmd.Context(), args[1]); err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			logger.Log.Info("backup {id} deleted", args[1])
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
