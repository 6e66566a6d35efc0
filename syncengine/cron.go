package syncengine

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/barmanhq/barman/internal/logger"
	"github.com/barmanhq/barman/manager"
	"github.com/barmanhq/barman/resilience"
)

// startRetryPolicy bounds the retry of a subprocess Start() failure: a
// cron tick shouldn't give up on a transient fork/exec hiccup, but it
// also can't afford to block the tick on a slow backoff, so the delay
// stays short and fixed rather than growing.
var startRetryPolicy = &resilience.RetryPolicy{
	MaxAttempts:     2,
	InitialDelay:    50 * time.Millisecond,
	MaxDelay:        50 * time.Millisecond,
	Multiplier:      1,
	RetryableErrors: func(error) bool { return true },
}

// CronConfig is how Cron invokes itself as a subprocess: one barman-sync
// binary, pointed at a config file that is only forwarded to children when
// the server is configured to do so.
type CronConfig struct {
	Executable        string
	ConfigPath        string
	ForwardConfigPath bool
	LockDir           string
}

// Cron dispatches one detached subprocess per pending backup-sync and at
// most one for the WAL-sync, skipping (and logging) whatever already has
// its lock held. The parent never waits on a child: each invocation below
// runs to completion independently and re-acquires its own lock once
// running, so the pre-flight check here is only a cheap filter against
// obviously-busy work, not a substitute for the subprocess's own locking.
func Cron(ctx context.Context, cfg CronConfig, pendingBackupIDs []string) {
	for _, id := range pendingBackupIDs {
		dispatch(cfg, manager.BackupLockPath(cfg.LockDir, id), []string{"sync-backup", id})
	}
	dispatch(cfg, manager.WALSyncLockPath(cfg.LockDir), []string{"sync-wals"})
}

func dispatch(cfg CronConfig, lockPath string, args []string) {
	lock, err := manager.AcquireLock(lockPath)
	if err != nil {
		logger.Log.Info("syncengine: cron skipping {args}, lock busy", strings.Join(args, " "))
		return
	}
	lock.Release()

	if cfg.ForwardConfigPath && cfg.ConfigPath != "" {
		args = append(args, "--config", cfg.ConfigPath)
	}

	var cmd *exec.Cmd
	startErr := startRetryPolicy.Execute(func() error {
		cmd = exec.Command(cfg.Executable, args...)
		return cmd.Start()
	})
	if startErr != nil {
		logger.Log.Warn("syncengine: cron failed to start {args}: {error}", strings.Join(args, " "), startErr)
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Log.Warn("syncengine: cron subprocess {args} exited with error: {error}", strings.Join(args, " "), err)
		}
	}()
}
