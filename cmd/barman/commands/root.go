// Package commands implements the barman CLI's subcommands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	version string

	barmanHome string

	rootCmd = &cobra.Command{
		Use:   "barman",
		Short: "Backup and recovery manager for a WAL-based database server",
		Long: `barman maintains, per managed server, a repository of periodic base
backups and a continuous WAL archive, enforces retention over them, and
produces runnable restores at a chosen point in time.`,
	}
)

// Execute runs the CLI.
func Execute(v string) error {
	version = v

	rootCmd.PersistentFlags().StringVar(&barmanHome, "barman-home", "/var/lib/barman", "root directory holding every managed server's catalog")

	rootCmd.AddCommand(
		versionCmd(),
		backupCmd(),
		deleteCmd(),
		checkCmd(),
		checkBackupCmd(),
		cronCmd(),
		listBackupCmd(),
		showBackupCmd(),
		showServerCmd(),
		statusCmd(),
		rebuildXlogdbCmd(),
		archiveWALCmd(),
		getWALCmd(),
		putWALCmd(),
		listFilesCmd(),
		recoverCmd(),
		diagnoseCmd(),
		syncInfoCmd(),
		syncBackupCmd(),
		syncWalsCmd(),
		receiveWALCmd(),
		switchWALCmd(),
		replicationStatusCmd(),
	)

	return rootCmd.Execute()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("barman version %s\n", version)
		},
	}
}
