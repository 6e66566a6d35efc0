package commands

import (
	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/catalog"
)

func statusCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "status <server>",
		Short: "Report a server's active/passive mode and backup counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				cmd.Printf("Server %s:\n  barman status: FAILED (%v)\n", args[0], err)
				return nil
			}
			defer srv.Close()

			cmd.Printf("Server %s:\n", args[0])
			if f.passiveOf != "" {
				cmd.Printf("  passive node of: %s\n", f.passiveOf)
			} else {
				cmd.Println("  passive node of: (none, this is a primary)")
			}

			done := srv.Catalog.Available(catalog.Statuses(catalog.StatusDone))
			cmd.Printf("  No. of available backups: %d\n", len(done))
			if first := srv.Catalog.First(catalog.Statuses(catalog.StatusDone)); first != nil {
				cmd.Printf("  First available backup: %s\n", first.ID)
			}
			if last := srv.Catalog.Last(catalog.Statuses(catalog.StatusDone)); last != nil {
				cmd.Printf("  Last available backup: %s\n", last.ID)
			}
			if f.minRedundancy > 0 {
				satisfied := len(done) >= f.minRedundancy
				cmd.Printf("  Minimum redundancy requirement satisfied: %t (%d/%d)\n", satisfied, len(done), f.minRedundancy)
			}
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
