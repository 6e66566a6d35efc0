package commands

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/walcatalog"
)

func getWALCmd() *cobra.Command {
	var f *serverFlags
	var outDir string
	var gzipOut bool
	var peek int
	cmd := &cobra.Command{
		Use:   "get-wal <server> <wal-name>",
		Short: "Fetch one archived WAL segment, or list the next --peek names",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(f, args[0])
			if err != nil {
				return err
			}
			defer srv.Close()

			_, walDir, _ := serverDirs(args[0])
			records, err := srv.Manager.WALJournal.Scan()
			if err != nil {
				return fmt.Errorf("get-wal: %w", err)
			}

			if peek > 0 {
				names, err := peekNames(records, args[1], peek)
				if err != nil {
					return fmt.Errorf("get-wal: %w", err)
				}
				for _, n := range names {
					cmd.Println(n)
				}
				return nil
			}

			rec, stored, ok := findRecord(records, args[1])
			if !ok {
				return fmt.Errorf("get-wal: %s is not in the archive", args[1])
			}

			src, err := os.Open(filepath.Join(walDir, walcatalog.ArchivePath(stored)))
			if err != nil {
				return fmt.Errorf("get-wal: %w", err)
			}
			defer src.Close()

			var out io.Writer = cmd.OutOrStdout()
			if outDir != "" {
				name := rec.Name
				if gzipOut && rec.Compression == "" {
					name += ".gz"
				}
				f, err := os.Create(filepath.Join(outDir, name))
				if err != nil {
					return fmt.Errorf("get-wal: %w", err)
				}
				defer f.Close()
				out = f
			}

			if gzipOut && rec.Compression == "" {
				gw := gzip.NewWriter(out)
				if _, err := io.Copy(gw, src); err != nil {
					return fmt.Errorf("get-wal: compress: %w", err)
				}
				return gw.Close()
			}

			_, err = io.Copy(out, src)
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "output-directory", "o", "", "write the segment into this directory instead of stdout")
	cmd.Flags().BoolVar(&gzipOut, "gzip", false, "gzip-compress the segment on the way out, if it isn't already compressed")
	cmd.Flags().IntVar(&peek, "peek", 0, "list up to N segment names following wal-name instead of fetching it")
	f = addServerFlags(cmd)
	return cmd
}

// findRecord returns the journal record whose bare name matches name,
// along with the exact stored file name (which may carry a compression
// suffix).
func findRecord(records []walcatalog.Record, name string) (rec walcatalog.Record, stored string, ok bool) {
	for _, r := range records {
		plain, _ := stripStoredExt(r.Name)
		if plain == name {
			return r, r.Name, true
		}
	}
	return walcatalog.Record{}, "", false
}

func stripStoredExt(name string) (string, string) {
	for _, ext := range []string{".gz", ".bz2", ".zstd", ".lz4"} {
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			return name[:len(name)-len(ext)], ext
		}
	}
	return name, ""
}

// peekNames returns up to n archived segment names, in archive order,
// following (and not including) from.
func peekNames(records []walcatalog.Record, from string, n int) ([]string, error) {
	begin, err := walcatalog.Decode(from)
	if err != nil {
		return nil, err
	}

	var candidates []walcatalog.Name
	present := make(map[string]struct{}, len(records))
	for _, r := range records {
		plain, _ := stripStoredExt(r.Name)
		if !walcatalog.IsWAL(plain) {
			continue
		}
		decoded, err := walcatalog.Decode(plain)
		if err != nil {
			continue
		}
		present[plain] = struct{}{}
		if begin.Less(decoded) {
			candidates = append(candidates, decoded)
		}
	}

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].Less(candidates[i]) {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.String()
	}
	return names, nil
}

func putWALCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put-wal <server> <wal-name>",
		Short: "Accept one WAL segment on stdin and spool it into the incoming archiver",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[1]
			root := filepath.Join(barmanHome, args[0], "incoming")
			if err := os.MkdirAll(root, 0o750); err != nil {
				return fmt.Errorf("put-wal: %w", err)
			}

			tmp := filepath.Join(root, name+".tmp")
			dest := filepath.Join(root, name)
			out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
			if err != nil {
				return fmt.Errorf("put-wal: %w", err)
			}
			if _, err := io.Copy(out, cmd.InOrStdin()); err != nil {
				out.Close()
				return fmt.Errorf("put-wal: %w", err)
			}
			if err := out.Sync(); err != nil {
				out.Close()
				return fmt.Errorf("put-wal: %w", err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("put-wal: %w", err)
			}
			return os.Rename(tmp, dest)
		},
	}
	return cmd
}
