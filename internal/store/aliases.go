package store

import "context"

// IndexAliases replaces a node's full alias set, mirroring IndexTags. Aliases
// are alternate titles returned by FetchNode; wikilink resolution
// (ResolveTitle) matches node titles only and does not consult them. They
// carry no first-seen bookkeeping of their own.
func (tx *Tx) IndexAliases(ctx context.Context, id string, aliases []string) error {
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM aliases WHERE node_id=?`, id); err != nil {
		return wrapStorage("clear node aliases", err)
	}
	for _, alias := range aliases {
		if alias == "" {
			continue
		}
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT INTO aliases (node_id, alias) VALUES (?, ?)
			ON CONFLICT(node_id, alias) DO NOTHING`, id, alias); err != nil {
			return wrapStorage("insert node alias", err)
		}
	}
	return nil
}
