package walcatalog

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/barmanhq/barman/internal/logger"
)

// Rebuild walks walDir (the archive tree, segments hashed into
// <first16>/<name> subdirectories) and regenerates the journal from
// scratch. Unrecognized entries are logged and skipped; files with a
// ".tmp" suffix (in-flight archiver writes) are skipped entirely; history
// files are indexed alongside plain segments.
//
// Applying Rebuild twice in a row yields the same journal, since the
// result depends only on the archive tree's current contents.
func (j *Journal) Rebuild(walDir string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var records []Record

	err := filepath.WalkDir(walDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == walDir && errors.Is(err, fs.ErrNotExist) {
				return nil // no archive tree yet: the journal is rebuilt empty
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".tmp") {
			return nil
		}

		plain, compExt := stripCompressionExt(name)
		switch {
		case IsWAL(plain) || IsHistory(plain) || IsBackupLabel(plain):
			info, ierr := d.Info()
			if ierr != nil {
				logger.Log.Warn("walcatalog: rebuild: cannot stat {path}: {error}", path, ierr)
				return nil
			}
			records = append(records, Record{
				Name:        name,
				Size:        info.Size(),
				ModTime:     info.ModTime().UTC(),
				Compression: compExt,
			})
		default:
			logger.Log.Warn("walcatalog: rebuild: ignoring unrecognized file {path}", path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return j.writeAllLocked(records)
}

var compressionExtensions = map[string]string{
	".gz":   "gzip",
	".bz2":  "bzip2",
	".zstd": "zstd",
	".lz4":  "lz4",
}

// stripCompressionExt splits a stored file name into its bare segment name
// and compression label, if any.
func stripCompressionExt(name string) (bare string, compression string) {
	for ext, label := range compressionExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), label
		}
	}
	return name, ""
}
