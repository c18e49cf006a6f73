// Package vaultcore owns the vault root directory: the filesystem layout
// of spec.md §6, and the L7/L8 create and update pipelines of spec.md
// §4.4/§4.5 that tie together content models, the index store, the
// template collaborator, the graph engine, and the event bus.
package vaultcore

import (
	"os"
	"path/filepath"

	"github.com/knotvault/knot/internal/apperr"
)

// writeFileAtomic writes data to path via a temp-file-then-rename,
// following the teacher's internal/export.WriteManifest pattern, so
// readers never observe a partially written file (spec.md §5).
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "create parent directory", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return apperr.Wrap(apperr.StorageFatal, "create temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "replace file", err)
	}
	return nil
}

// readFile reads a vault content file's current bytes.
func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// fileSnapshot captures a file's current bytes (or absence) so a failed
// write can be compensated: restore previous contents, or delete a newly
// created file (spec.md §5 failure atomicity).
type fileSnapshot struct {
	path    string
	existed bool
	data    []byte
}

func snapshotFile(path string) (fileSnapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fileSnapshot{path: path, existed: false}, nil
	}
	if err != nil {
		return fileSnapshot{}, apperr.Wrap(apperr.StorageFatal, "snapshot file", err)
	}
	return fileSnapshot{path: path, existed: true, data: data}, nil
}

// restore reverts path to the snapshot's state: deletes it if it didn't
// exist before, otherwise rewrites the prior bytes.
func (s fileSnapshot) restore() error {
	if !s.existed {
		return os.Remove(s.path)
	}
	return writeFileAtomic(s.path, s.data)
}
