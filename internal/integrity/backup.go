package integrity

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knotvault/knot/internal/apperr"
)

const backupTimeLayout = "20060102T150405Z"

func (e *Engine) backupDir() string {
	return filepath.Join(filepath.Dir(e.dbPath), "backups")
}

// backupIndex copies the current index file to a timestamped file in the
// backup directory (spec.md §4.11 "create a timestamped index backup"),
// grounded on cmd/bd/doctor/fix/database_integrity.go's backup-before-
// rebuild step, generalized from a rename to a copy so the live index
// keeps serving reads while the backup is taken.
func (e *Engine) backupIndex() (string, error) {
	if err := os.MkdirAll(e.backupDir(), 0o755); err != nil {
		return "", apperr.Wrap(apperr.BackupFailed, "create backup dir", err)
	}
	dst := filepath.Join(e.backupDir(), time.Now().UTC().Format(backupTimeLayout)+".db")
	if err := copyFile(e.dbPath, dst); err != nil {
		return "", apperr.Wrap(apperr.BackupFailed, "copy index to backup", err)
	}
	e.pruneBackups()
	return dst, nil
}

// pruneBackups enforces check.backup_max_count and
// check.backup_retention_days, oldest first. Failures are ignored: backup
// housekeeping never blocks the operation that triggered it.
func (e *Engine) pruneBackups() {
	entries, err := os.ReadDir(e.backupDir())
	if err != nil {
		return
	}
	var names []string
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasSuffix(ent.Name(), ".db") {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)

	if maxCount := e.cfg.Check.BackupMaxCount; maxCount > 0 && len(names) > maxCount {
		for _, n := range names[:len(names)-maxCount] {
			_ = os.Remove(filepath.Join(e.backupDir(), n))
		}
	}

	if days := e.cfg.Check.BackupRetentionDays; days > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		for _, n := range names {
			ts, terr := time.Parse(backupTimeLayout, strings.TrimSuffix(n, ".db"))
			if terr == nil && ts.Before(cutoff) {
				_ = os.Remove(filepath.Join(e.backupDir(), n))
			}
		}
	}
}

// latestBackup returns the most recent backup path, or "" if none exist.
func (e *Engine) latestBackup() (string, error) {
	entries, err := os.ReadDir(e.backupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", apperr.Wrap(apperr.StorageRecoverable, "read backup dir", err)
	}
	var names []string
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasSuffix(ent.Name(), ".db") {
			names = append(names, ent.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(e.backupDir(), names[len(names)-1]), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
