package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/catalog"
)

type diagnoseServer struct {
	Name            string   `json:"name"`
	BaseDir         string   `json:"base_dir"`
	WALDir          string   `json:"wal_dir"`
	LockDir         string   `json:"lock_dir"`
	Transport       string   `json:"transport"`
	PassiveOf       string   `json:"passive_of,omitempty"`
	Backups         []string `json:"backups"`
	AvailableCount  int      `json:"available_backup_count"`
}

type diagnoseReport struct {
	BarmanHome string           `json:"barman_home"`
	Servers    []diagnoseServer `json:"servers"`
}

func diagnoseCmd() *cobra.Command {
	var f *serverFlags
	cmd := &cobra.Command{
		Use:   "diagnose [server...]",
		Short: "Dump a JSON snapshot of every named server's configuration and catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := diagnoseReport{BarmanHome: barmanHome}

			for _, name := range args {
				srv, err := newServer(f, name)
				if err != nil {
					return fmt.Errorf("diagnose: %s: %w", name, err)
				}
				baseDir, walDir, lockDir := serverDirs(name)

				backups := srv.Catalog.Available(catalog.AnyStatus())
				ids := make([]string, len(backups))
				for i, b := range backups {
					ids[i] = b.ID
				}

				report.Servers = append(report.Servers, diagnoseServer{
					Name:           name,
					BaseDir:        baseDir,
					WALDir:         walDir,
					LockDir:        lockDir,
					Transport:      f.transport,
					PassiveOf:      f.passiveOf,
					Backups:        ids,
					AvailableCount: len(backups),
				})
				srv.Close()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	f = addServerFlags(cmd)
	return cmd
}
