package commands

import (
	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/catalog"
)

func listBackupCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "list-backup <server>",
		Short: "List every backup in the catalog, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			for _, b := range srv.Catalog.Available(catalog.AnyStatus()) {
				label := ""
				if b.Name != nil {
					label = " " + *b.Name
				}
				cmd.Printf("%s %s%s %s\n", args[0], b.ID, label, string(b.Status))
			}
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
