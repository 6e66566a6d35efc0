package commands

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/walcatalog"
)

func listFilesCmd() *cobra.Command {
	var f *serverFlags
	var target string
	cmd := &cobra.Command{
		Use:   "list-files <server> <backup-id>",
		Short: "List the files making up a backup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			b, err := srv.Catalog.Get(args[1])
			if err != nil {
				return fmt.Errorf("list-files: %w", err)
			}

			switch target {
			case "standalone", "data", "full":
				baseDir := filepath.Join(srv.Catalog.BackupDir(b.ID))
				if err := walkFiles(baseDir, cmd); err != nil {
					return fmt.Errorf("list-files: %w", err)
				}
			case "wal":
			default:
				return fmt.Errorf("list-files: unknown --target %q", target)
			}

			if target == "wal" || target == "full" {
				_, walDir, _ := serverDirs(args[0])
				segments, err := walcatalog.GenerateRange(b.BeginWAL.Segment, b.EndWAL.Segment, walSegSizeOrDefault(f))
				if err != nil {
					return fmt.Errorf("list-files: %w", err)
				}
				for _, seg := range segments {
					cmd.Println(filepath.Join(walDir, walcatalog.ArchivePath(seg)))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "standalone", "which files to list: standalone, data, wal, full")
	f = addServerFlags(cmd)
	return cmd
}

func walSegSizeOrDefault(f *serverFlags) int64 {
	if f.walSegSize > 0 {
		return f.walSegSize
	}
	return 16 * 1024 * 1024
}

func walkFiles(root string, cmd *cobra.Command) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		cmd.Println(path)
		return nil
	})
}
