package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	var f *serverFlags
	var nagios bool
	cmd := &cobra.Command{
		Use:   "check <server>",
		Short: "Re-evaluate every in-progress backup's consistency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				if nagios {
					cmd.Printf("BARMAN CRITICAL - %v\n", err)
				}
				return err
			}
			defer srv.Close()

			err = srv.CronCheck()
			if nagios {
				if err != nil {
					cmd.Printf("BARMAN CRITICAL - %s - %v\n", args[0], err)
				} else {
					cmd.Printf("BARMAN OK - %s\n", args[0])
				}
				return err
			}
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}
			cmd.Println("OK")
			return nil
		},
	}
	f = addServerFlags(cmd)
	cmd.Flags().BoolVar(&nagios, "nagios", false, "replace the normal report with a single-line Nagios-style summary")
	return cmd
}

func checkBackupCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "check-backup <server> <backup-id>",
		Short: "Re-evaluate one backup's consistency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.CheckBackup(args[1]); err != nil {
				return fmt.Errorf("check-backup: %w", err)
			}
			b, err := srv.Catalog.Get(args[1])
			if err != nil {
				return fmt.Errorf("check-backup: %w", err)
			}
			cmd.Println(string(b.Status))
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
