// Package migrations holds ordered, idempotent schema upgrades applied on
// top of the baseline schema, one function per numbered migration listed in
// All, following the teacher's internal/storage/sqlite/migrations convention
// of a function per ALTER rather than a single linear SQL file.
package migrations

import (
	"database/sql"
	"fmt"
)

// Migration is one named, idempotent schema step.
type Migration struct {
	Version int
	Name    string
	Apply   func(tx *sql.Tx) error
}

// All returns the ordered migration list. New migrations are appended here,
// never inserted or renumbered.
func All() []Migration {
	return []Migration{
		{Version: 1, Name: "dirty_nodes_marked_index", Apply: addDirtyNodesMarkedIndex},
	}
}

func addDirtyNodesMarkedIndex(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_dirty_nodes_marked ON dirty_nodes(marked)`)
	if err != nil {
		return fmt.Errorf("add dirty_nodes marked index: %w", err)
	}
	return nil
}

// Run applies every migration whose version has not yet been recorded in
// schema_migrations, in order, each inside its own transaction.
func Run(db *sql.DB) error {
	for _, m := range All() {
		var applied int
		err := db.QueryRow(`SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&applied)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d (%s): %w", m.Version, m.Name, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d (%s): %w", m.Version, m.Name, err)
		}
		if err := m.Apply(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied) VALUES (?, datetime('now'))`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d (%s): %w", m.Version, m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}
