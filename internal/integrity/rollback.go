package integrity

import (
	"context"

	"github.com/knotvault/knot/internal/apperr"
)

// RollbackResult reports which backup was restored.
type RollbackResult struct {
	RestoredFrom string `json:"restored_from"`
}

// Rollback replaces the current index file with the latest timestamped
// backup (spec.md §4.11 rollback). The caller must have closed the store
// and graph engine's live connection before calling this, since the
// index file is being replaced out from under it; the CLI layer reopens
// afterward.
func (e *Engine) Rollback(ctx context.Context) (*RollbackResult, error) {
	latest, err := e.latestBackup()
	if err != nil {
		return nil, err
	}
	if latest == "" {
		return nil, apperr.New(apperr.NoBackups, "no integrity backups found")
	}
	if err := copyFile(latest, e.dbPath); err != nil {
		return nil, apperr.Wrap(apperr.BackupFailed, "restore backup over index", err)
	}
	return &RollbackResult{RestoredFrom: latest}, nil
}
