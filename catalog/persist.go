package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/barmanhq/barman/internal/logger"
)

// InfoFileName is the name of the metadata file inside every backup directory.
const InfoFileName = "backup.info"

// noneLiteral is written for any field with no value, matching the
// cross-tool-compatible text format described in spec.md §6.
const noneLiteral = "None"

// fieldOrder fixes the sort-by-key order backups are written in; writes are
// deterministic so the round-trip law (write(parse(text)) == text, up to
// normalization) holds trivially.
var fieldOrder = []string{
	"backup_id",
	"backup_label",
	"backup_name",
	"begin_offset",
	"begin_time",
	"begin_wal",
	"begin_xlog",
	"config_files",
	"coordination",
	"data_dir",
	"deduplicated_size",
	"end_offset",
	"end_time",
	"end_wal",
	"end_xlog",
	"error",
	"included_config",
	"keep",
	"size",
	"status",
	"systemid",
	"tablespaces",
	"timeline",
	"transport",
	"version",
	"wal_segment_size",
}

// WriteTo serializes b as key=value lines, sorted by key, to w.
func WriteTo(w *bufio.Writer, b *Backup) error {
	fields := toFields(b)
	for _, key := range fieldOrder {
		val, ok := fields[key]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", key, val); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Save atomically persists b to <dir>/backup.info: write temp sibling,
// fsync, rename, fsync directory.
func Save(dir string, b *Backup) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("catalog: create backup dir: %w", err)
	}
	target := filepath.Join(dir, InfoFileName)
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("catalog: create temp info file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := WriteTo(bw, b); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("catalog: write info file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("catalog: fsync info file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("catalog: close info file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("catalog: rename info file: %w", err)
	}
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// ReadFrom parses a backup.info body. dirID is the directory basename this
// file was found under; per spec.md §9 Open Questions, the directory name
// always wins over any embedded backup_id line.
func ReadFrom(r *bufio.Reader, path string, dirID string) (*Backup, error) {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("catalog: %s:%d: missing '=' in line %q", path, lineNo, line)
		}
		key := line[:idx]
		val := line[idx+1:]
		if !knownField(key) {
			logger.Log.Warn("catalog: {path}: ignoring unknown field {key}", path, key)
			continue
		}
		fields[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}

	b, err := fromFields(fields)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	if b.ID != "" && b.ID != dirID {
		logger.Log.Warn("catalog: {path}: backup_id {recorded} disagrees with directory name {dir}, using directory name", path, b.ID, dirID)
	}
	b.ID = dirID
	return b, nil
}

func knownField(key string) bool {
	for _, f := range fieldOrder {
		if f == key {
			return true
		}
	}
	return false
}

func toFields(b *Backup) map[string]string {
	f := make(map[string]string, len(fieldOrder))
	f["backup_id"] = b.ID
	f["backup_label"] = dumpBytes(b.Label)
	f["backup_name"] = dumpStringPtr(b.Name)
	f["begin_offset"] = strconv.FormatInt(b.BeginWAL.Offset, 10)
	f["begin_time"] = dumpTime(b.BeginTime)
	f["begin_wal"] = dumpString(b.BeginWAL.Segment)
	f["begin_xlog"] = dumpString(b.BeginWAL.LSN)
	f["config_files"] = dumpTuple(b.ConfigFiles)
	f["coordination"] = dumpString(string(b.Coordination))
	f["data_dir"] = dumpString(b.DataDir)
	f["deduplicated_size"] = strconv.FormatInt(b.DeduplicatedBytes, 10)
	f["end_offset"] = strconv.FormatInt(b.EndWAL.Offset, 10)
	f["end_time"] = dumpTime(b.EndTime)
	f["end_wal"] = dumpString(b.EndWAL.Segment)
	f["end_xlog"] = dumpString(b.EndWAL.LSN)
	f["error"] = dumpString(b.Error)
	f["included_config"] = dumpTuple(b.IncludedConfig)
	f["keep"] = dumpString(string(b.KeepTarget))
	f["size"] = strconv.FormatInt(b.SizeBytes, 10)
	f["status"] = string(b.Status)
	f["systemid"] = dumpString(b.SystemID)
	f["tablespaces"] = dumpTablespaces(b.Tablespaces)
	f["timeline"] = strconv.FormatUint(uint64(b.Timeline), 10)
	f["transport"] = dumpString(string(b.Transport))
	f["version"] = dumpString(b.DatabaseVersion)
	f["wal_segment_size"] = strconv.FormatInt(b.WALSegSize, 10)
	return f
}

func fromFields(f map[string]string) (*Backup, error) {
	b := &Backup{Status: StatusEmpty}

	b.Label = loadBytes(f["backup_label"])
	b.Name = loadStringPtr(f["backup_name"])
	if v, err := loadInt64(f["begin_offset"]); err != nil {
		return nil, fmt.Errorf("begin_offset: %w", err)
	} else {
		b.BeginWAL.Offset = v
	}
	if v, err := loadTime(f["begin_time"]); err != nil {
		return nil, fmt.Errorf("begin_time: %w", err)
	} else {
		b.BeginTime = v
	}
	b.BeginWAL.Segment = loadString(f["begin_wal"])
	b.BeginWAL.LSN = loadString(f["begin_xlog"])
	b.ConfigFiles = loadTuple(f["config_files"])
	b.Coordination = Coordination(loadString(f["coordination"]))
	b.DataDir = loadString(f["data_dir"])
	if v, err := loadInt64(f["deduplicated_size"]); err != nil {
		return nil, fmt.Errorf("deduplicated_size: %w", err)
	} else {
		b.DeduplicatedBytes = v
	}
	if v, err := loadInt64(f["end_offset"]); err != nil {
		return nil, fmt.Errorf("end_offset: %w", err)
	} else {
		b.EndWAL.Offset = v
	}
	if v, err := loadTime(f["end_time"]); err != nil {
		return nil, fmt.Errorf("end_time: %w", err)
	} else {
		b.EndTime = v
	}
	b.EndWAL.Segment = loadString(f["end_wal"])
	b.EndWAL.LSN = loadString(f["end_xlog"])
	b.Error = loadString(f["error"])
	b.IncludedConfig = loadTuple(f["included_config"])
	b.KeepTarget = KeepTarget(loadString(f["keep"]))
	if v, err := loadInt64(f["size"]); err != nil {
		return nil, fmt.Errorf("size: %w", err)
	} else {
		b.SizeBytes = v
	}
	if s, ok := f["status"]; ok && s != "" {
		b.Status = Status(s)
	}
	b.SystemID = loadString(f["systemid"])
	tss, err := loadTablespaces(f["tablespaces"])
	if err != nil {
		return nil, fmt.Errorf("tablespaces: %w", err)
	}
	b.Tablespaces = tss
	if v, ok := f["timeline"]; ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("timeline: %w", err)
		}
		b.Timeline = uint32(n)
	}
	b.Transport = Transport(loadString(f["transport"]))
	b.DatabaseVersion = loadString(f["version"])
	if v, err := loadInt64(f["wal_segment_size"]); err != nil {
		return nil, fmt.Errorf("wal_segment_size: %w", err)
	} else {
		b.WALSegSize = v
	}

	b.ID = loadString(f["backup_id"])
	return b, nil
}

// --- scalar (de)serialization helpers -------------------------------------

func dumpString(s string) string {
	if s == "" {
		return noneLiteral
	}
	return s
}

func loadString(s string) string {
	if s == "" || s == noneLiteral {
		return ""
	}
	return s
}

func dumpStringPtr(s *string) string {
	if s == nil {
		return noneLiteral
	}
	return *s
}

func loadStringPtr(s string) *string {
	if s == "" || s == noneLiteral {
		return nil
	}
	v := s
	return &v
}

func dumpBytes(b []byte) string {
	if len(b) == 0 {
		return noneLiteral
	}
	return fmt.Sprintf("%q", string(b))
}

func loadBytes(s string) []byte {
	if s == "" || s == noneLiteral {
		return nil
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return []byte(s)
	}
	return []byte(unquoted)
}

func dumpTime(t time.Time) string {
	if t.IsZero() {
		return noneLiteral
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func loadTime(s string) (time.Time, error) {
	if s == "" || s == noneLiteral {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func loadInt64(s string) (int64, error) {
	if s == "" || s == noneLiteral {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// --- tuple-literal list encoding -------------------------------------------
//
// Lists are encoded as a parenthesized tuple literal for cross-tool
// compatibility: ("a", "b", "c"), or None for an empty or nil list.
// loadTuple also reads () as an empty list.

func dumpTuple(items []string) string {
	if len(items) == 0 {
		return noneLiteral
	}
	var sb strings.Builder
	sb.WriteByte('(')
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", it)
	}
	sb.WriteByte(')')
	return sb.String()
}

func loadTuple(s string) []string {
	if s == "" || s == noneLiteral {
		return nil
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := splitQuoted(s)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if unq, err := strconv.Unquote(p); err == nil {
			out = append(out, unq)
		} else {
			out = append(out, strings.Trim(p, `"'`))
		}
	}
	return out
}

// splitQuoted splits a comma-separated list of double-quoted strings,
// respecting quote boundaries so commas inside values are not mistaken for
// separators.
func splitQuoted(s string) []string {
	var parts []string
	var cur bytes.Buffer
	inQuote := false
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == '"':
			cur.WriteRune(r)
			inQuote = !inQuote
		case r == ',' && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func dumpTablespaces(tss []Tablespace) string {
	if len(tss) == 0 {
		return noneLiteral
	}
	var sb strings.Builder
	sb.WriteByte('(')
	for i, ts := range tss {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "(%q, %d, %q)", ts.Name, ts.OID, ts.Location)
	}
	sb.WriteByte(')')
	return sb.String()
}

func loadTablespaces(s string) ([]Tablespace, error) {
	if s == "" || s == noneLiteral {
		return nil, nil
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var tss []Tablespace
	depth := 0
	var cur bytes.Buffer
	inQuote := false
	flush := func() error {
		triple := strings.TrimSpace(cur.String())
		cur.Reset()
		if triple == "" {
			return nil
		}
		ts, err := parseTablespaceTriple(triple)
		if err != nil {
			return err
		}
		tss = append(tss, ts)
		return nil
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case inQuote:
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			depth--
			cur.WriteRune(r)
		case r == ',' && depth == 0:
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			cur.WriteRune(r)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	sort.SliceStable(tss, func(i, j int) bool { return tss[i].OID < tss[j].OID })
	return tss, nil
}

func parseTablespaceTriple(s string) (Tablespace, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := splitQuoted(s)
	if len(parts) != 3 {
		return Tablespace{}, fmt.Errorf("malformed tablespace tuple %q", s)
	}
	name, err := strconv.Unquote(strings.TrimSpace(parts[0]))
	if err != nil {
		return Tablespace{}, fmt.Errorf("tablespace name: %w", err)
	}
	oidStr := strings.TrimSpace(parts[1])
	oid, err := strconv.ParseUint(oidStr, 10, 32)
	if err != nil {
		return Tablespace{}, fmt.Errorf("tablespace oid: %w", err)
	}
	loc, err := strconv.Unquote(strings.TrimSpace(parts[2]))
	if err != nil {
		return Tablespace{}, fmt.Errorf("tablespace location: %w", err)
	}
	return Tablespace{Name: name, OID: uint32(oid), Location: loc}, nil
}
