package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/barmanhq/barman/cmd/barman/pgconn"
	"github.com/barmanhq/barman/executor"
	"github.com/barmanhq/barman/manager"
	"github.com/barmanhq/barman/offload"
	"github.com/barmanhq/barman/retention"
	"github.com/barmanhq/barman/security"
	"github.com/barmanhq/barman/server"
)

// serverFlags holds the flags every per-server command exposes, standing
// in for the config-file loading spec.md names as an external
// collaborator: each invocation rebuilds its Server from these flags, the
// same "no long-lived daemon" shape server.New documents.
type serverFlags struct {
	transport    string
	coordination string
	connScript   string
	connArgs     []string
	bandwidthLimit bool
	walSegSize   int64

	nativeConcurrentAPI       bool
	concurrentHelperExtension bool

	redundancy     int
	minRedundancy  int
	recoveryWindow time.Duration
	retentionAuto  bool

	offloadFilesystem string

	passiveOf        string
	primaryBaseDir   string
	primaryWALDir    string
	syncCompression  string
	syncParallelJobs int

	signPrivateKey string
	signPublicKey  string
}

func addServerFlags(cmd *cobra.Command) *serverFlags {
	f := &serverFlags{}
	cmd.Flags().StringVar(&f.transport, "transport", "file-copy-remote", "backup transport: file-copy-remote, database-streaming, passive-mirror")
	cmd.Flags().StringVar(&f.coordination, "coordination", "concurrent", "database coordination for file-copy-remote: exclusive, concurrent")
	cmd.Flags().StringVar(&f.connScript, "conn-script", "", "external script driving the database connection (see pgconn.Script)")
	cmd.Flags().StringArrayVar(&f.connArgs, "conn-arg", nil, "argument prepended before every conn-script invocation (repeatable)")
	cmd.Flags().BoolVar(&f.bandwidthLimit, "streaming-bandwidth-limit-supported", false, "whether the streaming tool named by conn-script honors a bandwidth limit")
	cmd.Flags().Int64Var(&f.walSegSize, "wal-seg-size", 16*1024*1024, "WAL segment size in bytes, used to derive segment names from raw LSNs")
	cmd.Flags().BoolVar(&f.nativeConcurrentAPI, "native-concurrent-api", true, "database supports the native concurrent-backup API")
	cmd.Flags().BoolVar(&f.concurrentHelperExtension, "concurrent-helper-extension", false, "barman helper extension is installed, for older databases")

	cmd.Flags().IntVar(&f.redundancy, "redundancy", 0, "number of DONE backups to keep (0 disables count-based retention)")
	cmd.Flags().IntVar(&f.minRedundancy, "min-redundancy", 0, "minimum number of backups retention must never drop below")
	cmd.Flags().DurationVar(&f.recoveryWindow, "recovery-window", 0, "recovery window (e.g. 168h); overrides --redundancy when nonzero")
	cmd.Flags().BoolVar(&f.retentionAuto, "retention-auto", false, "let cron delete backups retention classifies obsolete")

	cmd.Flags().StringVar(&f.offloadFilesystem, "offload-filesystem", "", "off-site mirror directory for archived WALs and backups")

	cmd.Flags().StringVar(&f.passiveOf, "passive-of", "", "make this server a passive mirror of the named primary")
	cmd.Flags().StringVar(&f.primaryBaseDir, "primary-base-dir", "", "primary server's base backup directory (passive only)")
	cmd.Flags().StringVar(&f.primaryWALDir, "primary-wal-dir", "", "primary server's WAL directory (passive only)")
	cmd.Flags().StringVar(&f.syncCompression, "sync-compression", "", "compression tag sync-ingested WAL segments carry")
	cmd.Flags().IntVar(&f.syncParallelJobs, "sync-parallel-jobs", 1, "Copy Controller parallelism for sync operations")

	cmd.Flags().StringVar(&f.signPrivateKey, "sign-private-key", "", "Ed25519 private key (PEM) signing outgoing sync snapshots")
	cmd.Flags().StringVar(&f.signPublicKey, "sign-public-key", "", "Ed25519 public key (PEM) verifying incoming sync snapshots")

	return f
}

func (f *serverFlags) policy() retention.Policy {
	if f.recoveryWindow > 0 {
		return retention.RecoveryWindow{Window: f.recoveryWindow, MinRedundancy: f.minRedundancy}
	}
	if f.redundancy > 0 {
		return retention.Redundancy{N: f.redundancy, MinRedundancy: f.minRedundancy}
	}
	return nil
}

func (f *serverFlags) transportAndCoordination() (executor.Transport, executor.Coordination, error) {
	var conn *pgconn.Script
	if f.connScript != "" {
		conn = &pgconn.Script{Path: f.connScript, Args: f.connArgs}
	}

	switch f.transport {
	case "file-copy-remote":
		if conn == nil {
			return nil, nil, fmt.Errorf("--conn-script is required for file-copy-remote transport")
		}
		var coord executor.Coordination
		switch f.coordination {
		case "exclusive":
			coord = &executor.Exclusive{Conn: conn, WALSegSize: f.walSegSize}
		case "concurrent":
			coord = &executor.Concurrent{
				Conn:                     conn,
				WALSegSize:               f.walSegSize,
				NativeAPISupported:       f.nativeConcurrentAPI,
				HelperExtensionInstalled: f.concurrentHelperExtension,
			}
		default:
			return nil, nil, fmt.Errorf("unknown --coordination %q", f.coordination)
		}
		return &executor.FileCopyRemote{}, coord, nil
	case "database-streaming":
		if conn == nil {
			return nil, nil, fmt.Errorf("--conn-script is required for database-streaming transport")
		}
		tool := &pgconn.StreamingTool{Script: *conn, BandwidthLimitSupported: f.bandwidthLimit}
		return &executor.DatabaseStreaming{Tool: tool}, nil, nil
	case "passive-mirror":
		return &executor.PassiveMirror{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown --transport %q", f.transport)
	}
}

// build assembles the server.Options this flag set describes. The caller
// still supplies WithDirectories (derived from --barman-home and the
// positional server name) and any command-specific options (archivers,
// hooks, restore point).
func (f *serverFlags) build() ([]server.Option, error) {
	var opts []server.Option

	if f.passiveOf != "" {
		opts = append(opts, server.WithPassiveOf(f.passiveOf, f.primaryBaseDir, f.primaryWALDir))
	} else {
		transport, coordination, err := f.transportAndCoordination()
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithTransport(transport, coordination))
	}

	if policy := f.policy(); policy != nil {
		opts = append(opts, server.WithRetention(policy, f.minRedundancy, f.retentionAuto))
	}

	if f.offloadFilesystem != "" {
		opts = append(opts, server.WithOffload(offload.FilesystemConfig{Path: f.offloadFilesystem}))
	}

	if f.syncCompression != "" {
		opts = append(opts, server.WithSyncCompression(f.syncCompression))
	}
	if f.syncParallelJobs > 0 {
		opts = append(opts, server.WithSyncParallelJobs(f.syncParallelJobs))
	}

	signer, err := f.signer()
	if err != nil {
		return nil, err
	}
	if signer != nil {
		opts = append(opts, server.WithSyncChannelSecurity(signer, nil))
	}

	return opts, nil
}

func (f *serverFlags) signer() (security.Signer, error) {
	switch {
	case f.signPrivateKey != "":
		return security.LoadEd25519Signer(f.signPrivateKey)
	case f.signPublicKey != "":
		pub, err := security.LoadEd25519PublicKey(f.signPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewEd25519Verifier(pub), nil
	default:
		return nil, nil
	}
}

// serverDirs returns the on-disk layout for serverName under --barman-home.
func serverDirs(serverName string) (baseDir, walDir, lockDir string) {
	root := filepath.Join(barmanHome, serverName)
	return filepath.Join(root, "base"), filepath.Join(root, "wals"), filepath.Join(root, "lock")
}

// newServer builds a Server for serverName rooted at --barman-home,
// creating its on-disk directories if they don't exist yet. extra is
// appended after the flag-derived options, for command-specific wiring
// such as WithArchivers.
func newServer(f *serverFlags, serverName string, extra ...server.Option) (*server.Server, error) {
	baseDir, walDir, lockDir := serverDirs(serverName)

	for _, dir := range []string{baseDir, walDir, lockDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	opts, err := f.build()
	if err != nil {
		return nil, err
	}
	opts = append([]server.Option{server.WithDirectories(serverName, baseDir, walDir, lockDir)}, opts...)
	opts = append(opts, extra...)

	return server.New(opts...)
}

// spoolArchiver is the manager.Archiver backing the on-disk "incoming" and
// "streaming" spool directories spec.md §6 names.
type spoolArchiver struct {
	name string
	dir  string
}

func (a *spoolArchiver) Name() string     { return a.name }
func (a *spoolArchiver) SpoolDir() string { return a.dir }

// defaultArchivers returns the standard incoming/streaming spool
// archivers for serverName, creating their directories if missing.
func defaultArchivers(serverName string) ([]manager.Archiver, error) {
	root := filepath.Join(barmanHome, serverName)
	dirs := []spoolArchiver{
		{name: "incoming", dir: filepath.Join(root, "incoming")},
		{name: "streaming", dir: filepath.Join(root, "streaming")},
	}
	archivers := make([]manager.Archiver, 0, len(dirs))
	for i := range dirs {
		if err := os.MkdirAll(dirs[i].dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dirs[i].dir, err)
		}
		archivers = append(archivers, &dirs[i])
	}
	return archivers, nil
}
