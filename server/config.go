package server

import (
	"fmt"
	"time"

	"github.com/barmanhq/barman/executor"
	"github.com/barmanhq/barman/manager"
	"github.com/barmanhq/barman/offload"
	"github.com/barmanhq/barman/retention"
	"github.com/barmanhq/barman/security"
)

// Option configures a Server. Construction follows the same
// functional-options shape as the rest of the pack: New applies every
// Option to a defaulted Config, validates the result, then builds the
// component graph in one pass.
type Option func(*Config) error

// Config is everything New needs to assemble one server's component
// graph. Fields that name an external collaborator (DatabaseConn,
// StreamingBackupTool, a remote-snapshot fetcher) are opaque capabilities
// supplied by the caller, not built by this package — the database
// client, the remote-copy transport and the CLI's argument parsing are
// explicitly out of scope per the core's purpose statement.
type Config struct {
	ServerName string
	BaseDir    string // <barman_home>/<serverName>/base
	WALDir     string // <barman_home>/<serverName>/wals
	LockDir    string

	Transport    executor.Transport
	Coordination executor.Coordination // nil for DatabaseStreaming / PassiveMirror

	Policy        retention.Policy
	MinRedundancy int
	RetentionAuto bool

	Archivers []manager.Archiver

	RestorePoint manager.RestorePointRequester
	Hooks        manager.Hooks

	OffloadConfigs []offload.Config

	Signer    security.Signer
	Encryptor security.Encryptor

	// PassiveOf, when set, makes this server a sync target of the named
	// primary: New builds a syncengine.Engine instead of leaving sync
	// disabled.
	PassiveOf      string
	PrimaryBaseDir string
	PrimaryWALDir  string
	SyncCompression string
	SyncParallelJobs int

	Now func() time.Time
}

func defaultConfig() *Config {
	return &Config{
		MinRedundancy:    0,
		SyncParallelJobs: 1,
		Now:              time.Now,
	}
}

func (c *Config) validate() error {
	if c.ServerName == "" {
		return fmt.Errorf("server: ServerName is required")
	}
	if c.BaseDir == "" {
		return fmt.Errorf("server: BaseDir is required")
	}
	if c.WALDir == "" {
		return fmt.Errorf("server: WALDir is required")
	}
	if c.LockDir == "" {
		return fmt.Errorf("server: LockDir is required")
	}
	if c.PassiveOf == "" && c.Transport == nil {
		return fmt.Errorf("server: Transport is required for a non-passive server")
	}
	if c.PassiveOf != "" && (c.PrimaryBaseDir == "" || c.PrimaryWALDir == "") {
		return fmt.Errorf("server: PrimaryBaseDir and PrimaryWALDir are required when PassiveOf is set")
	}
	return nil
}

// WithDirectories sets the on-disk layout for this server's backups, WAL
// archive and advisory lock files.
func WithDirectories(serverName, baseDir, walDir, lockDir string) Option {
	return func(c *Config) error {
		c.ServerName = serverName
		c.BaseDir = baseDir
		c.WALDir = walDir
		c.LockDir = lockDir
		return nil
	}
}

// WithTransport selects the backup executor's transport and (for
// FileCopyRemote) coordination strategy.
func WithTransport(transport executor.Transport, coordination executor.Coordination) Option {
	return func(c *Config) error {
		c.Transport = transport
		c.Coordination = coordination
		return nil
	}
}

// WithRetention sets the retention policy and whether CronRetention is
// allowed to delete what it classifies obsolete.
func WithRetention(policy retention.Policy, minRedundancy int, auto bool) Option {
	return func(c *Config) error {
		c.Policy = policy
		c.MinRedundancy = minRedundancy
		c.RetentionAuto = auto
		return nil
	}
}

// WithArchivers registers the WAL spool sources ArchiveWAL drains.
func WithArchivers(archivers ...manager.Archiver) Option {
	return func(c *Config) error {
		c.Archivers = append(c.Archivers, archivers...)
		return nil
	}
}

// WithRestorePoint sets the collaborator Backup asks to record a named
// restore point after a successful copy.
func WithRestorePoint(r manager.RestorePointRequester) Option {
	return func(c *Config) error {
		c.RestorePoint = r
		return nil
	}
}

// WithHooks sets the hook-script callback ports.
func WithHooks(h manager.Hooks) Option {
	return func(c *Config) error {
		c.Hooks = h
		return nil
	}
}

// WithOffload adds an off-site mirror target. Pushes to every configured
// target run fire-and-forget; a misconfigured one fails at New, not at
// the first archived segment.
func WithOffload(cfg offload.Config) Option {
	return func(c *Config) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("server: invalid offload config: %w", err)
		}
		c.OffloadConfigs = append(c.OffloadConfigs, cfg)
		return nil
	}
}

// WithSyncChannelSecurity enables signing (and, if enc is non-nil,
// encryption) of the sync snapshot envelope. signer must be able to Sign
// on a primary and Verify on a passive node; a passive-only deployment
// can pass a verifier built from security.NewEd25519Verifier.
func WithSyncChannelSecurity(signer security.Signer, enc security.Encryptor) Option {
	return func(c *Config) error {
		c.Signer = signer
		c.Encryptor = enc
		return nil
	}
}

// WithPassiveOf makes this server a passive mirror of the named primary,
// reachable at primaryBaseDir/primaryWALDir the same way
// executor.FileCopyRemote reaches a "remote" source: a filesystem path
// the Copy Controller can walk directly (SSHFS mount, shared storage, or
// already-fetched staging tree).
func WithPassiveOf(primaryName, primaryBaseDir, primaryWALDir string) Option {
	return func(c *Config) error {
		c.PassiveOf = primaryName
		c.PrimaryBaseDir = primaryBaseDir
		c.PrimaryWALDir = primaryWALDir
		return nil
	}
}

// WithSyncCompression sets the compression tag sync-ingested WAL segments
// are expected to carry; "" means uncompressed.
func WithSyncCompression(compression string) Option {
	return func(c *Config) error {
		c.SyncCompression = compression
		return nil
	}
}

// WithSyncParallelJobs sets the Copy Controller parallelism value that
// SyncBackup passes to its copy job; SyncWALs does not use it.
func WithSyncParallelJobs(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("server: SyncParallelJobs must be positive")
		}
		c.SyncParallelJobs = n
		return nil
	}
}

// WithClock overrides the server's clock; tests only.
func WithClock(now func() time.Time) Option {
	return func(c *Config) error {
		c.Now = now
		return nil
	}
}
