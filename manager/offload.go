package manager

import (
	"os"
	"path/filepath"

	"github.com/barmanhq/barman/internal/logger"
)

// mirrorSegment pushes one archived WAL segment to every configured
// offload backend, fire-and-forget: each push runs in its own goroutine so
// a slow or unreachable off-site target never delays the next archived
// segment, mirroring the teacher's Sink.replicateToBackend pattern in
// sink.go.
func (m *Manager) mirrorSegment(name, path string) {
	for _, backend := range m.OffloadBackends {
		backend := backend
		go func() {
			f, err := os.Open(path)
			if err != nil {
				logger.Log.Warn("manager: offload {backend}: cannot open {segment}: {error}", backend.Name(), name, err)
				return
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				logger.Log.Warn("manager: offload {backend}: cannot stat {segment}: {error}", backend.Name(), name, err)
				return
			}
			if err := backend.PutSegment(name, f, info.Size()); err != nil {
				logger.Log.Warn("manager: offload {backend}: failed to mirror {segment}: {error}", backend.Name(), name, err)
			}
		}()
	}
}

// mirrorBackup pushes every file in a completed backup's directory tree to
// every configured offload backend, fire-and-forget.
func (m *Manager) mirrorBackup(backupID, backupDir string) {
	for _, backend := range m.OffloadBackends {
		backend := backend
		go func() {
			err := filepath.Walk(backupDir, func(path string, info os.FileInfo, err error) error {
				if err != nil || info.IsDir() {
					return err
				}
				rel, relErr := filepath.Rel(backupDir, path)
				if relErr != nil {
					return relErr
				}
				f, openErr := os.Open(path)
				if openErr != nil {
					return openErr
				}
				defer f.Close()
				return backend.PutBackupFile(backupID, filepath.ToSlash(rel), f, info.Size())
			})
			if err != nil {
				logger.Log.Warn("manager: offload {backend}: failed to mirror backup {id}: {error}", backend.Name(), backupID, err)
			}
		}()
	}
}
