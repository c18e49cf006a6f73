package integrity

import (
	"os"
	"path/filepath"
	"time"
)

// nowUTC is indirected so tests could pin a clock if ever needed; no test
// currently does.
func nowUTC() time.Time { return time.Now().UTC() }

// writeFileAtomic writes data to path via a temp-file-then-rename, the
// pattern used throughout this codebase (vaultcore/fs.go, reweave,
// session) wherever a vault file must never be observed half-written.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
