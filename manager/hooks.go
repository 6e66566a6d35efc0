package manager

import (
	"context"
	"errors"

	barman "github.com/barmanhq/barman"
	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/internal/logger"
)

// HookFunc is one hook script invocation site. It receives the backup the
// hook runs in the context of (nil for hooks that are not backup-scoped,
// such as WAL-archival hooks outside of any single backup).
type HookFunc func(ctx context.Context, b *catalog.Backup) error

// Hooks are the callback ports a Manager invokes around each operation.
// Any field left nil is skipped. Pre-hooks fire-and-continue unless noted;
// retry-hooks can signal abort by returning *barman.AbortedRetryHookScript,
// which backup() honors from the pre-retry hook, run after the plain
// pre-hook (ABORT_STOP), and post() ignores (ABORT_CONTINUE, since the
// backup already ran).
type Hooks struct {
	PreBackup       HookFunc
	PreBackupRetry  HookFunc
	PostBackupRetry HookFunc
	PostBackup      HookFunc

	PreDelete  HookFunc
	PostDelete HookFunc

	PreWAL  HookFunc
	PostWAL HookFunc
}

// runContinue invokes fn if non-nil and logs (but never returns) its error:
// the fire-and-continue shape used for plain pre-hooks and all post-hooks.
func runContinue(ctx context.Context, fn HookFunc, b *catalog.Backup, name string) {
	if fn == nil {
		return
	}
	if err := fn(ctx, b); err != nil {
		logger.Log.Warn("manager: {hook} hook failed, continuing: {error}", name, err)
	}
}

// runAbortable invokes fn if non-nil; an *barman.AbortedRetryHookScript
// error is returned to the caller so it can stop the operation before it
// has any side effects. Any other error is treated as fire-and-continue.
func runAbortable(ctx context.Context, fn HookFunc, b *catalog.Backup, name string) error {
	if fn == nil {
		return nil
	}
	err := fn(ctx, b)
	if err == nil {
		return nil
	}
	var aborted *barman.AbortedRetryHookScript
	if errors.As(err, &aborted) {
		return aborted
	}
	logger.Log.Warn("manager: {hook} hook failed, continuing: {error}", name, err)
	return nil
}
