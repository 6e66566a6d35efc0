// Package server owns one barman server's full component graph: the
// catalog, WAL journal, retention policy, executor, manager, optional
// sync engine, monitoring, and off-site mirrors. It is the Server
// aggregate design note calls for: the cyclic references between the
// manager and the executor are broken by building the whole graph here,
// once, and passing non-owning handles down — children never retain the
// server beyond a single call.
package server

import (
	"context"
	"fmt"

	barman "github.com/barmanhq/barman"
	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/executor"
	"github.com/barmanhq/barman/manager"
	"github.com/barmanhq/barman/monitoring"
	"github.com/barmanhq/barman/offload"
	"github.com/barmanhq/barman/syncengine"
	"github.com/barmanhq/barman/walcatalog"
)

// Server is a non-owning handle over one server's assembled components. A
// command invocation builds one with New, calls the operation it needs,
// and discards it; nothing here is cached across invocations except the
// in-memory catalog/journal state that New loads at construction.
type Server struct {
	Name string

	Catalog  *catalog.Catalog
	Manager  *manager.Manager
	SyncEngine *syncengine.Engine // nil unless Config.PassiveOf was set

	Monitor *monitoring.Monitor

	cfg *Config
}

// New loads the on-disk catalog and WAL journal, builds the executor,
// manager, optional sync engine and off-site mirrors, and starts
// monitoring. The returned Server owns the monitor (Close stops it); the
// catalog and journal are loaded fresh from disk every time, matching the
// "no long-lived daemon" assumption the CLI's per-invocation model makes.
func New(opts ...Option) (*Server, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("server: invalid configuration: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	cat, err := catalog.Load(cfg.ServerName, cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("server: load catalog: %w", err)
	}

	journal := walcatalog.Open(cfg.WALDir)
	records, err := journal.Scan()
	if err != nil {
		return nil, fmt.Errorf("server: inspect WAL journal: %w", err)
	}
	if len(records) == 0 {
		if err := journal.Rebuild(cfg.WALDir); err != nil {
			return nil, fmt.Errorf("server: rebuild WAL journal: %w", err)
		}
	}

	backends, err := buildOffloadBackends(cfg.OffloadConfigs)
	if err != nil {
		return nil, err
	}

	mgr := manager.New(cfg.ServerName, cfg.BaseDir, cfg.WALDir, cfg.LockDir)
	mgr.Catalog = cat
	mgr.WALJournal = journal
	mgr.Policy = cfg.Policy
	mgr.MinRedundancy = cfg.MinRedundancy
	mgr.RetentionAuto = cfg.RetentionAuto
	mgr.RestorePoint = cfg.RestorePoint
	mgr.Hooks = cfg.Hooks
	mgr.OffloadBackends = backends
	if cfg.Now != nil {
		mgr.Now = cfg.Now
	}
	if cfg.Transport != nil {
		mgr.Executor = &executor.Executor{
			Transport:    cfg.Transport,
			Coordination: cfg.Coordination,
		}
	}

	srv := &Server{
		Name:    cfg.ServerName,
		Catalog: cat,
		Manager: mgr,
		cfg:     cfg,
	}

	if cfg.PassiveOf != "" {
		srv.SyncEngine = &syncengine.Engine{
			ServerName:     cfg.ServerName,
			LockDir:        cfg.LockDir,
			Catalog:        cat,
			WALJournal:     journal,
			WALDir:         cfg.WALDir,
			Policy:         cfg.Policy,
			Compression:    cfg.SyncCompression,
			ParallelJobs:   cfg.SyncParallelJobs,
			PrimaryBaseDir: cfg.PrimaryBaseDir,
			PrimaryWALDir:  cfg.PrimaryWALDir,
			Now:            cfg.Now,
		}
	}

	monitorCfg := monitoring.DefaultConfig()
	srv.Monitor = monitoring.NewMonitor(monitorCfg)
	srv.Monitor.Start()
	monitoring.SetActiveServers(1)

	return srv, nil
}

// Close stops the server's monitor. It does not close the catalog or
// journal: both are plain in-memory structures over already-flushed
// files, nothing to release.
func (s *Server) Close() error {
	if s.Monitor != nil {
		s.Monitor.Stop()
	}
	return nil
}

// Backup runs one base-backup attempt. A *barman.Fatal from the manager
// is returned unchanged: Manager.Backup already does the translation at
// the boundary described in [[manager]]'s DESIGN.md entry.
func (s *Server) Backup(ctx context.Context) (*catalog.Backup, error) {
	if s.Manager.Executor == nil {
		return nil, &barman.ConfigError{Server: s.Name, Reason: "no transport configured, cannot take a backup (is it passive-only?)"}
	}
	return s.Manager.Backup(ctx)
}

// Delete removes a backup and reclaims the WAL it alone protected.
func (s *Server) Delete(ctx context.Context, id string) error {
	return s.Manager.Delete(ctx, id)
}

// ArchiveWAL drains every configured archiver's spool into the archive.
func (s *Server) ArchiveWAL(ctx context.Context) error {
	return s.Manager.ArchiveWAL(ctx, s.cfg.Archivers)
}

// CheckBackup re-evaluates one backup's consistency and persists the
// result.
func (s *Server) CheckBackup(id string) error {
	b, err := s.Catalog.Get(id)
	if err != nil {
		return translateUnknownBackup(err)
	}
	if err := s.Manager.CheckBackup(b); err != nil {
		return err
	}
	return s.Catalog.Update(b)
}

// CronCheck re-evaluates every in-progress backup's consistency, the
// sweep spec.md §2 describes a cron tick driving alongside WAL ingestion
// and retention.
func (s *Server) CronCheck() error {
	for _, b := range s.Catalog.Available(catalog.Statuses(catalog.StatusWaitingForWALs)) {
		if err := s.Manager.CheckBackup(b); err != nil {
			return fmt.Errorf("server: check backup %s: %w", b.ID, err)
		}
		if err := s.Catalog.Update(b); err != nil {
			return fmt.Errorf("server: persist backup %s: %w", b.ID, err)
		}
	}
	return nil
}

// CronRetention runs the retention sweep.
func (s *Server) CronRetention(ctx context.Context) error {
	return s.Manager.CronRetention(ctx)
}

// Cron runs one full unattended tick: WAL ingestion, the consistency
// recheck sweep, and the retention sweep, in that order — archiving
// before checking means a backup whose end_wal just landed can advance
// to DONE in the same tick it completed in.
func (s *Server) Cron(ctx context.Context) error {
	if err := s.ArchiveWAL(ctx); err != nil {
		return fmt.Errorf("server: archive WAL: %w", err)
	}
	if err := s.CronCheck(); err != nil {
		return err
	}
	return s.CronRetention(ctx)
}

func translateUnknownBackup(err error) error {
	if unk, ok := err.(*catalog.UnknownBackup); ok {
		return &barman.UnknownBackup{ID: unk.ID}
	}
	return err
}

func buildOffloadBackends(cfgs []offload.Config) ([]offload.Backend, error) {
	backends := make([]offload.Backend, 0, len(cfgs))
	for _, cfg := range cfgs {
		backend, err := offload.Create(cfg)
		if err != nil {
			return nil, fmt.Errorf("server: create offload backend: %w", err)
		}
		backends = append(backends, backend)
	}
	return backends, nil
}
