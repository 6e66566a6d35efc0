// Package pgconn implements executor.DatabaseConn and
// executor.StreamingBackupTool by shelling out to a single
// operator-supplied script, the same external-plugin shape
// syncengine.Cron and manager.Hooks already use for subprocess
// invocation. Talking to the database itself (a real libpq/SQL client) is
// an external collaborator spec.md's scope notes name explicitly; this
// package is the seam the CLI exposes for an operator to plug one in
// without barman-core depending on a database driver.
package pgconn

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	barman "github.com/barmanhq/barman"
	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/executor"
)

// Script drives a single external program for every DatabaseConn
// operation, dispatching on its first argument. Each subcommand's stdout
// contract is documented on the corresponding method below; a nonzero
// exit is always an error, wrapped in *barman.CommandFailed with the
// captured stderr.
type Script struct {
	// Path is the executable invoked for every operation.
	Path string
	// Args are prepended before the subcommand and its own arguments,
	// typically the connection target (e.g. a conninfo string or host
	// alias the script already knows how to reach).
	Args []string
}

func (s *Script) run(ctx context.Context, sub string, extra ...string) (string, error) {
	args := append(append(append([]string{}, s.Args...), sub), extra...)
	cmd := exec.CommandContext(ctx, s.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return "", &barman.CommandFailed{Program: s.Path, ExitCode: exitCode, Stderr: stderr.String()}
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

// Probe runs "probe", expecting tab-separated fields:
// dataDir, version, walSegSize, tablespaces, configFiles.
// tablespaces is a comma-separated list of "name:oid:location" triples
// (empty string if none); configFiles is a comma-separated list of
// absolute paths outside dataDir (empty string if none).
func (s *Script) Probe(ctx context.Context) (executor.Metadata, error) {
	out, err := s.run(ctx, "probe")
	if err != nil {
		return executor.Metadata{}, err
	}
	fields := strings.Split(out, "\t")
	if len(fields) < 5 {
		return executor.Metadata{}, fmt.Errorf("pgconn: probe: expected 5 tab-separated fields, got %d", len(fields))
	}
	walSegSize, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return executor.Metadata{}, fmt.Errorf("pgconn: probe: parse wal segment size %q: %w", fields[2], err)
	}
	meta := executor.Metadata{
		DataDir:         fields[0],
		DatabaseVersion: fields[1],
		WALSegSize:      walSegSize,
		Tablespaces:     parseTablespaces(fields[3]),
		ConfigFiles:     splitNonEmpty(fields[4], ","),
	}
	return meta, nil
}

// InRecovery runs "in-recovery", expecting "true" or "false".
func (s *Script) InRecovery(ctx context.Context) (bool, error) {
	out, err := s.run(ctx, "in-recovery")
	if err != nil {
		return false, err
	}
	return out == "true", nil
}

// SystemID runs "system-id", expecting the raw identifier as stdout.
func (s *Script) SystemID(ctx context.Context) (string, error) {
	return s.run(ctx, "system-id")
}

// ExecBeginBackup runs "begin-backup <label> <exclusive>", expecting
// "lsn\ttimeline\tbase64Label" (the label field is empty under exclusive
// coordination).
func (s *Script) ExecBeginBackup(ctx context.Context, label string, exclusive bool) (string, uint32, error) {
	out, err := s.run(ctx, "begin-backup", label, strconv.FormatBool(exclusive))
	if err != nil {
		return "", 0, err
	}
	fields := strings.Split(out, "\t")
	if len(fields) < 2 {
		return "", 0, fmt.Errorf("pgconn: begin-backup: expected at least 2 tab-separated fields, got %d", len(fields))
	}
	timeline, err := parseTimeline(fields[1])
	if err != nil {
		return "", 0, err
	}
	return fields[0], timeline, nil
}

// ExecEndBackup runs "end-backup <exclusive>", expecting
// "lsn\ttimeline\tbase64Label\ttablespaceMap", where tablespaceMap is a
// semicolon-separated list of "oid:escapedLocation" pairs (empty if none).
func (s *Script) ExecEndBackup(ctx context.Context, exclusive bool) (string, uint32, []byte, []executor.TablespaceMapEntry, error) {
	out, err := s.run(ctx, "end-backup", strconv.FormatBool(exclusive))
	if err != nil {
		return "", 0, nil, nil, err
	}
	fields := strings.Split(out, "\t")
	if len(fields) < 4 {
		return "", 0, nil, nil, fmt.Errorf("pgconn: end-backup: expected 4 tab-separated fields, got %d", len(fields))
	}
	timeline, err := parseTimeline(fields[1])
	if err != nil {
		return "", 0, nil, nil, err
	}
	var label []byte
	if fields[2] != "" {
		label, err = base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			return "", 0, nil, nil, fmt.Errorf("pgconn: end-backup: decode label: %w", err)
		}
	}
	mapping, err := parseTablespaceMap(fields[3])
	if err != nil {
		return "", 0, nil, nil, err
	}
	return fields[0], timeline, label, mapping, nil
}

// ExecSwitchWAL runs "switch-wal", expecting the new segment name, or an
// empty line if the database is in recovery and no switch happened.
func (s *Script) ExecSwitchWAL(ctx context.Context) (string, error) {
	return s.run(ctx, "switch-wal")
}

func parseTimeline(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("pgconn: parse timeline %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseTablespaces(field string) []catalog.Tablespace {
	var out []catalog.Tablespace
	for _, triple := range splitNonEmpty(field, ",") {
		parts := strings.SplitN(triple, ":", 3)
		if len(parts) != 3 {
			continue
		}
		oid, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			continue
		}
		out = append(out, catalog.Tablespace{Name: parts[0], OID: uint32(oid), Location: parts[2]})
	}
	return out
}

func parseTablespaceMap(field string) ([]executor.TablespaceMapEntry, error) {
	var out []executor.TablespaceMapEntry
	for _, pair := range splitNonEmpty(field, ";") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("pgconn: malformed tablespace map entry %q", pair)
		}
		oid, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("pgconn: parse tablespace oid %q: %w", parts[0], err)
		}
		out = append(out, executor.TablespaceMapEntry{OID: uint32(oid), Location: parts[1]})
	}
	return out, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// StreamingTool drives "<script> stream <destDir> <backupID>" for the
// DatabaseStreaming transport, expecting the resulting on-disk size in
// bytes as stdout.
type StreamingTool struct {
	Script
	BandwidthLimitSupported bool
}

func (t *StreamingTool) SupportsBandwidthLimit() bool { return t.BandwidthLimitSupported }

func (t *StreamingTool) Run(ctx context.Context, destDir string, b *catalog.Backup) (int64, error) {
	out, err := t.run(ctx, "stream", destDir, b.ID)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pgconn: stream: parse size %q: %w", out, err)
	}
	return size, nil
}
