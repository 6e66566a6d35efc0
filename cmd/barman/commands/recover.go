package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/copier"
	"github.com/barmanhq/barman/server"
	"github.com/barmanhq/barman/walcatalog"
)

// recoverCmd restores a backup into a target directory: it copies the
// backup's data directory tree (and every tablespace) verbatim, then
// copies the WAL segments the backup's own range needs into a pg_wal
// staging directory alongside it. There is no database-side apply step
// here, matching the scope note in server/config.go: starting the
// restored instance is left to the caller.
func recoverCmd() *cobra.Command {
	var f *serverFlags
	var targetDir string
	var remapTablespace map[string]string
	cmd := &cobra.Command{
		Use:   "recover <server> <backup-id>",
		Short: "Restore a backup's data directory and required WAL into a target directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetDir == "" {
				return fmt.Errorf("recover: --target-dir is required")
			}
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			b, err := srv.Catalog.Get(args[1])
			if err != nil {
				return fmt.Errorf("recover: %w", err)
			}

			baseDir := srv.Catalog.BackupDir(b.ID)
			items := []copier.Item{
				{
					Label:       "pgdata",
					Class:       copier.ClassPgData,
					IsDirectory: true,
					Source:      filepath.Join(baseDir, "data"),
					Destination: targetDir,
				},
			}
			for _, ts := range b.Tablespaces {
				dest := ts.Location
				if remap, ok := remapTablespace[ts.Name]; ok {
					dest = remap
				}
				items = append(items, copier.Item{
					Label:       "tablespace:" + ts.Name,
					Class:       copier.ClassTablespace,
					IsDirectory: true,
					Source:      filepath.Join(baseDir, fmt.Sprintf("%d", ts.OID)),
					Destination: dest,
				})
			}

			job, err := copier.NewJob(items)
			if err != nil {
				return fmt.Errorf("recover: %w", err)
			}
			stats, err := job.Copy()
			if err != nil {
				return fmt.Errorf("recover: %w", err)
			}
			logger := cmd.ErrOrStderr()
			fmt.Fprintf(logger, "recover: restored %d file(s) into %s\n", stats.FilesCopied, targetDir)

			if err := recoverWAL(srv, f, b, targetDir, args[0]); err != nil {
				return fmt.Errorf("recover: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&targetDir, "target-dir", "", "directory to restore the data directory into")
	cmd.Flags().StringToStringVar(&remapTablespace, "remap-tablespace", nil, "name=newpath, repeatable, relocates a tablespace on restore")
	f = addServerFlags(cmd)
	return cmd
}

func recoverWAL(srv *server.Server, f *serverFlags, b *catalog.Backup, targetDir, serverName string) error {
	_, walDir, _ := serverDirs(serverName)
	segments, err := walcatalog.GenerateRange(b.BeginWAL.Segment, b.EndWAL.Segment, walSegSizeOrDefault(f))
	if err != nil {
		return err
	}

	stagingDir := filepath.Join(targetDir, "pg_wal_restore")
	if err := os.MkdirAll(stagingDir, 0o750); err != nil {
		return err
	}

	for _, seg := range segments {
		src := filepath.Join(walDir, walcatalog.ArchivePath(seg))
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		item := copier.Item{
			Label:       "wal:" + seg,
			Class:       copier.ClassConfig,
			IsDirectory: false,
			Source:      src,
			Destination: filepath.Join(stagingDir, seg),
		}
		job, err := copier.NewJob([]copier.Item{item})
		if err != nil {
			return err
		}
		if _, err := job.Copy(); err != nil {
			return err
		}
	}
	return nil
}
