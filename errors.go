// Package barman implements the backup-and-WAL lifecycle engine of a single
// server: base backups, continuous WAL archiving, retention, consistency
// checking, and catalog replication to a passive node.
package barman

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions with no useful payload beyond their kind.
var (
	// ErrSinkClosed is returned when an operation is attempted on a closed Server.
	ErrSinkClosed = errors.New("barman: server is closed")

	// ErrDatabaseInRecovery gates operations that require a primary database.
	ErrDatabaseInRecovery = errors.New("barman: database is in recovery, operation requires a primary")

	// ErrSyncNothingToDo signals a sync tick found nothing new to transfer.
	ErrSyncNothingToDo = errors.New("barman: nothing to sync")

	// ErrSyncToBeDeleted signals a passive-side backup copy should be removed
	// because the primary no longer has it and the local copy is incomplete.
	ErrSyncToBeDeleted = errors.New("barman: local copy is stale and will be deleted")

	// ErrSystemIDMismatch indicates an incremental-reuse source belongs to a
	// different database instance than the one currently being backed up.
	ErrSystemIDMismatch = errors.New("barman: systemid mismatch, refusing incremental reuse")
)

// ConfigError is surfaced at startup for one server; it disables the
// offending server but must never prevent other servers from running.
type ConfigError struct {
	Server string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("barman: config error for server %q: %s", e.Server, e.Reason)
}

// LockBusy is returned when a concurrent invocation already holds the
// advisory lock a command needs; no side effects are performed.
type LockBusy struct {
	Lock string
}

func (e *LockBusy) Error() string {
	return fmt.Sprintf("barman: lock busy: %s", e.Lock)
}

// CommandFailed wraps the failure of any external process invocation.
type CommandFailed struct {
	Program  string
	ExitCode int
	Stderr   string
}

func (e *CommandFailed) Error() string {
	return fmt.Sprintf("barman: command %q failed (exit %d): %s", e.Program, e.ExitCode, e.Stderr)
}

// DataTransferFailure wraps a copy-stage failure with the offending item.
type DataTransferFailure struct {
	ItemLabel string
	Err       error
}

func (e *DataTransferFailure) Error() string {
	return fmt.Sprintf("barman: data transfer failed for %q: %v", e.ItemLabel, e.Err)
}

func (e *DataTransferFailure) Unwrap() error { return e.Err }

// UnknownBackup is a catalog miss for the given id.
type UnknownBackup struct {
	ID string
}

func (e *UnknownBackup) Error() string {
	return fmt.Sprintf("barman: unknown backup %q", e.ID)
}

// BadSegmentName indicates a WAL segment name failed to parse.
type BadSegmentName struct {
	Raw string
}

func (e *BadSegmentName) Error() string {
	return fmt.Sprintf("barman: malformed WAL segment name %q", e.Raw)
}

// SyncError covers sync protocol and precondition failures.
type SyncError struct {
	Message string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("barman: sync error: %s", e.Message)
}

// CompressionIncompatibility flags a configuration mismatch discovered at
// check time (e.g. primary and passive nodes configured with different
// WAL compression).
type CompressionIncompatibility struct {
	Field string
}

func (e *CompressionIncompatibility) Error() string {
	return fmt.Sprintf("barman: incompatible compression setting: %s", e.Field)
}

// AbortedRetryHookScript surfaces a hook script that requested the retry
// loop stop, so post-hooks can distinguish it from other failures.
type AbortedRetryHookScript struct {
	Script   string
	ExitCode int
}

func (e *AbortedRetryHookScript) Error() string {
	return fmt.Sprintf("barman: retry hook %q requested abort (exit %d)", e.Script, e.ExitCode)
}

// Fatal wraps an unanticipated error for top-level reporting; the original
// error is always preserved via Unwrap.
type Fatal struct {
	Err error
}

func (e *Fatal) Error() string {
	return fmt.Sprintf("barman: fatal: %v", e.Err)
}

func (e *Fatal) Unwrap() error { return e.Err }
