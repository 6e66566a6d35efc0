package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func rebuildXlogdbCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "rebuild-xlogdb <server>",
		Short: "Regenerate the WAL journal from the archive tree's current contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			_, walDir, _ := serverDirs(args[0])
			if err := srv.Manager.WALJournal.Rebuild(walDir); err != nil {
				return fmt.Errorf("rebuild-xlogdb: %w", err)
			}
			return nil
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
