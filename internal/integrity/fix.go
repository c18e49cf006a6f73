package integrity

import (
	"context"
	"os"
	"path/filepath"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/ids"
	"github.com/knotvault/knot/internal/store"
)

// FixLevel selects how aggressively fix() repairs what check() found.
type FixLevel string

const (
	FixSafe       FixLevel = "safe"
	FixAggressive FixLevel = "aggressive"
)

// FixResult reports what fix() did.
type FixResult struct {
	BackupPath               string `json:"backup_path"`
	OrphanRowsRemoved        int    `json:"orphan_rows_removed"`
	FTSEntriesRepaired       int    `json:"fts_entries_repaired"`
	TagsResynced             int    `json:"tags_resynced"`
	EdgesReindexed           int    `json:"edges_reindexed"`
	FrontmatterCanonicalized int    `json:"frontmatter_canonicalized"`
}

// Fix applies repairs for the issues check() would find. A timestamped
// index backup is always taken first. Body text is never modified by
// either level (spec.md §4.11).
func (e *Engine) Fix(ctx context.Context, level FixLevel) (*FixResult, error) {
	backupPath, err := e.backupIndex()
	if err != nil {
		return nil, err
	}
	res := &FixResult{BackupPath: backupPath}

	rows, err := e.store.ListNodes(ctx, storeListFilterAll(), "n.id", 0)
	if err != nil {
		return nil, err
	}

	var orphanIDs []string
	fileByID := make(map[string]*store.NodeRow, len(rows))
	for _, n := range rows {
		path, perr := ids.Path(kindOf(n.Type), n.ID, n.Topic)
		if perr != nil {
			continue
		}
		if _, statErr := os.Stat(filepath.Join(e.root, path)); os.IsNotExist(statErr) {
			orphanIDs = append(orphanIDs, n.ID)
			continue
		}
		fileByID[n.ID] = n
	}

	if len(orphanIDs) > 0 {
		err = e.store.Transaction(ctx, func(tx *store.Tx) error {
			for _, id := range orphanIDs {
				if derr := tx.DeleteNode(ctx, id); derr != nil {
					return derr
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		res.OrphanRowsRemoved = len(orphanIDs)
	}

	ftsIDs, err := e.queryStrings(ctx, `SELECT id FROM fts`)
	if err != nil {
		return nil, err
	}
	ftsSet := make(map[string]bool, len(ftsIDs))
	for _, id := range ftsIDs {
		ftsSet[id] = true
	}

	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		for id, n := range fileByID {
			if ftsSet[id] {
				continue
			}
			path, _ := ids.Path(kindOf(n.Type), n.ID, n.Topic)
			raw, rerr := os.ReadFile(filepath.Join(e.root, path))
			if rerr != nil {
				continue
			}
			_, body, perr := frontmatter.Parse(raw)
			if perr != nil {
				continue
			}
			if uerr := tx.UpsertFTS(ctx, id, n.Title, body); uerr != nil {
				return uerr
			}
			res.FTSEntriesRepaired++
		}
		for _, id := range ftsIDs {
			if fileByID[id] == nil && !containsNode(rows, id) {
				if derr := tx.DeleteFTS(ctx, id); derr != nil {
					return derr
				}
				res.FTSEntriesRepaired++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		for id, n := range fileByID {
			path, _ := ids.Path(kindOf(n.Type), n.ID, n.Topic)
			raw, rerr := os.ReadFile(filepath.Join(e.root, path))
			if rerr != nil {
				continue
			}
			fm, _, perr := frontmatter.Parse(raw)
			if perr != nil {
				continue
			}
			if terr := tx.IndexTags(ctx, id, fm.Tags, now); terr != nil {
				return terr
			}
			res.TagsResynced++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if level == FixAggressive {
		resolve := e.store.ResolveTitle
		err = e.store.Transaction(ctx, func(tx *store.Tx) error {
			for id, n := range fileByID {
				path, _ := ids.Path(kindOf(n.Type), n.ID, n.Topic)
				raw, rerr := os.ReadFile(filepath.Join(e.root, path))
				if rerr != nil {
					continue
				}
				fm, body, perr := frontmatter.Parse(raw)
				if perr != nil {
					continue
				}
				if n.Type != "log" {
					if lerr := tx.IndexLinks(ctx, id, fm.Links, body, now, resolve); lerr != nil {
						return lerr
					}
					res.EdgesReindexed++
				}

				canon, eerr := frontmatter.Emit(fm, body)
				if eerr != nil {
					continue
				}
				if werr := writeFileAtomic(filepath.Join(e.root, path), canon); werr != nil {
					return apperr.Wrap(apperr.StorageRecoverable, "write canonicalized frontmatter", werr)
				}
				res.FrontmatterCanonicalized++
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if e.graph != nil {
			e.graph.Invalidate()
		}
	}

	return res, nil
}

func containsNode(rows []*store.NodeRow, id string) bool {
	for _, n := range rows {
		if n.ID == id {
			return true
		}
	}
	return false
}
