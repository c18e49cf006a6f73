package vaultcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/ids"
	"github.com/knotvault/knot/internal/store"
)

// Update runs the four-stage update pipeline of spec.md §4.5: validate
// (immutability, content-model rules, garden body protection, NoChanges),
// apply (new frontmatter/body/row), propagate (note status, two-pass so it
// reflects the edges produced by this same update), and index (FTS/tags/
// edges as needed). Validation, including reading and parsing the node's
// file, runs before the transaction opens; the file write and row update of
// apply, propagate and index run inside one transaction.
func (v *Vault) Update(ctx context.Context, id string, changes content.ChangeSet) (*content.Node, []string, error) {
	var warnings []string

	existing, err := v.Store.FetchNode(ctx, id)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.NotFound, "fetch node for update", err)
	}
	node := toNodeRow(existing)

	model, err := v.Models.Lookup(node.Type, node.Subtype)
	if err != nil {
		return nil, nil, err
	}

	effective := content.ChangeSet{}
	for k, val := range changes {
		effective[k] = val
	}
	if node.Maturity != "" {
		if effective.Has("body") {
			delete(effective, "body")
			warnings = append(warnings, "body is protected on a node with maturity set; body change dropped")
		}
		if effective.Has("notes") {
			delete(effective, "notes")
			warnings = append(warnings, "body is protected on a node with maturity set; notes change dropped")
		}
	}
	if len(effective) == 0 {
		return nil, warnings, apperr.New(apperr.NoChanges, "update has no effective changes")
	}

	w, err := model.ValidateUpdate(node, effective)
	warnings = append(warnings, w...)
	if err != nil {
		return nil, warnings, err
	}

	kind := kindFor(node.Type)
	relPath, err := ids.Path(kind, id, node.Topic)
	if err != nil {
		return nil, warnings, apperr.Wrap(apperr.ValidationFailed, "compute path", err)
	}
	fullPath := filepath.Join(v.Root, relPath)

	raw, err := readFile(fullPath)
	if err != nil {
		return nil, warnings, apperr.Wrap(apperr.StorageFatal, "read node file", err)
	}
	fm, oldBody, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, warnings, apperr.Wrap(apperr.StorageFatal, "parse node file", err)
	}

	now := nowFunc()
	bodyChanged := false
	newBody := oldBody
	if b, ok := effective["body"]; ok {
		if s, ok := b.(string); ok && s != oldBody {
			newBody = s
			bodyChanged = true
		}
	}
	// Free-text "notes" iteration (SPEC_FULL.md §4 item 4, grounded in the
	// teacher's internal/decision/iterate.go): rather than rejecting
	// guidance that doesn't select a status transition, append it to a
	// canonical "## Notes" body section.
	if nv, ok := effective["notes"]; ok {
		if s, ok := nv.(string); ok && strings.TrimSpace(s) != "" {
			newBody = appendNote(newBody, s, now)
			bodyChanged = true
		}
	}

	titleChanged, tagsChanged, linksChanged, aliasesChanged := applyChangeSet(fm, effective)

	fm.Modified = &now
	row := *node
	applyRowChanges(&row, fm)

	var row2 *store.NodeRow
	var snap fileSnapshot
	err = v.Store.Transaction(ctx, func(tx *store.Tx) error {
		var sErr error
		snap, sErr = snapshotFile(fullPath)
		if sErr != nil {
			return sErr
		}

		data, eErr := frontmatter.Emit(fm, newBody)
		if eErr != nil {
			return apperr.Wrap(apperr.StorageFatal, "emit frontmatter", eErr)
		}
		if wErr := writeFileAtomic(fullPath, data); wErr != nil {
			return wErr
		}

		sum := sha256.Sum256(data)
		row.ContentHash = hex.EncodeToString(sum[:])
		row.Modified = now

		storeRow := toStoreRow(&row)
		if iErr := tx.UpdateNode(ctx, storeRow); iErr != nil {
			if restoreErr := snap.restore(); restoreErr != nil {
				v.log.Warn("failed to restore file after update failure", zap.Error(restoreErr))
			}
			return apperr.Wrap(apperr.StorageFatal, "update node", iErr)
		}

		if linksChanged || bodyChanged {
			if iErr := tx.IndexLinks(ctx, id, fm.Links, newBody, now, v.Store.ResolveTitle); iErr != nil {
				return iErr
			}
		}
		if tagsChanged {
			if iErr := tx.IndexTags(ctx, id, fm.Tags, now); iErr != nil {
				return iErr
			}
		}
		if aliasesChanged {
			if iErr := tx.IndexAliases(ctx, id, fm.Aliases); iErr != nil {
				return iErr
			}
		}
		if titleChanged || bodyChanged {
			if iErr := tx.UpsertFTS(ctx, id, fm.Title, newBody); iErr != nil {
				return iErr
			}
		}

		// Propagate: for notes, recompute status from the edge set this
		// same transaction just produced, so the node row reflects the new
		// edges rather than the pre-update ones (spec.md §4.5 step 3).
		if node.Type == content.TypeNote && model.Transitions().Computed {
			outgoing, eErr := tx.OutgoingEdgesTx(ctx, id)
			if eErr != nil {
				return eErr
			}
			status := computeNoteStatus(len(outgoing))
			if status != fm.Status {
				fm.Status = status
				row.Status = status
				data2, e2 := frontmatter.Emit(fm, newBody)
				if e2 != nil {
					return apperr.Wrap(apperr.StorageFatal, "re-emit frontmatter after propagate", e2)
				}
				if w2 := writeFileAtomic(fullPath, data2); w2 != nil {
					return w2
				}
				sum2 := sha256.Sum256(data2)
				row.ContentHash = hex.EncodeToString(sum2[:])
				storeRow2 := toStoreRow(&row)
				if iErr := tx.UpdateNode(ctx, storeRow2); iErr != nil {
					return apperr.Wrap(apperr.StorageFatal, "update node after propagate", iErr)
				}
			}
		}

		row2 = toStoreRow(&row)
		return nil
	})
	if err != nil {
		return nil, warnings, err
	}

	v.Graph.Invalidate()

	payload := map[string]any{"id": id, "type": string(node.Type)}
	if row.Archived && !existing.Archived {
		if dErr := v.Bus.Dispatch(ctx, eventbus.HookPostClose, payload, false); dErr != nil {
			warnings = append(warnings, fmt.Sprintf("post_close dispatch failed: %v", dErr))
		}
	}
	if dErr := v.Bus.Dispatch(ctx, eventbus.HookPostUpdate, payload, false); dErr != nil {
		warnings = append(warnings, fmt.Sprintf("post_update dispatch failed: %v", dErr))
	}

	return toNodeRow(row2), warnings, nil
}

// Archive is update(id, {archived: true}).
func (v *Vault) Archive(ctx context.Context, id string) (*content.Node, []string, error) {
	return v.Update(ctx, id, content.ChangeSet{"archived": true})
}

// Supersede is update(oldID, {status: superseded, superseded_by: newID}),
// routed through the same state-machine checks as any other status change.
func (v *Vault) Supersede(ctx context.Context, oldID, newID string) (*content.Node, []string, error) {
	return v.Update(ctx, oldID, content.ChangeSet{"status": "superseded", "superseded_by": newID})
}

// applyChangeSet mutates fm in place for every recognized key in changes,
// reporting which reindex-relevant facets actually changed.
func applyChangeSet(fm *frontmatter.Frontmatter, changes content.ChangeSet) (titleChanged, tagsChanged, linksChanged, aliasesChanged bool) {
	if v, ok := changes["title"]; ok {
		if s, ok := v.(string); ok && s != fm.Title {
			fm.Title = s
			titleChanged = true
		}
	}
	if v, ok := changes["status"]; ok {
		if s, ok := v.(string); ok {
			fm.Status = s
		}
	}
	if v, ok := changes["maturity"]; ok {
		if s, ok := v.(string); ok {
			fm.Maturity = s
		}
	}
	if v, ok := changes["topic"]; ok {
		if s, ok := v.(string); ok {
			fm.Topic = s
		}
	}
	if v, ok := changes["url"]; ok {
		if s, ok := v.(string); ok {
			fm.URL = s
		}
	}
	if v, ok := changes["archived"]; ok {
		if b, ok := v.(bool); ok {
			fm.Archived = b
		}
	}
	if v, ok := changes["superseded_by"]; ok {
		if s, ok := v.(string); ok {
			fm.SupersededBy = s
		}
	}
	if v, ok := changes["priority"]; ok {
		if p, ok := v.(*int); ok {
			fm.Priority = p
		}
	}
	if v, ok := changes["impact"]; ok {
		if p, ok := v.(*int); ok {
			fm.Impact = p
		}
	}
	if v, ok := changes["effort"]; ok {
		if p, ok := v.(*int); ok {
			fm.Effort = p
		}
	}
	if v, ok := changes["tags"]; ok {
		if ts, ok := v.([]string); ok {
			fm.Tags = ts
			tagsChanged = true
		}
	}
	if v, ok := changes["aliases"]; ok {
		if as, ok := v.([]string); ok {
			fm.Aliases = as
			aliasesChanged = true
		}
	}
	if v, ok := changes["links"]; ok {
		if ls, ok := v.(map[string][]string); ok {
			fm.Links = ls
			linksChanged = true
		}
	}
	return titleChanged, tagsChanged, linksChanged, aliasesChanged
}

// appendNote appends a single dated free-text note under a canonical
// "## Notes" body section, creating the section if absent. Other sections
// are left untouched.
func appendNote(body, note string, now time.Time) string {
	const heading = "## Notes"
	entry := fmt.Sprintf("- %s: %s", now.Format("2006-01-02"), note)

	idx := strings.Index(body, heading)
	if idx < 0 {
		trimmed := strings.TrimRight(body, "\n")
		if trimmed == "" {
			return heading + "\n" + entry + "\n"
		}
		return trimmed + "\n\n" + heading + "\n" + entry + "\n"
	}

	rest := body[idx+len(heading):]
	section, tail := rest, ""
	if next := strings.Index(rest, "\n## "); next >= 0 {
		section, tail = rest[:next], rest[next:]
	}
	section = strings.TrimRight(section, "\n") + "\n" + entry + "\n"
	return body[:idx+len(heading)] + section + tail
}

func applyRowChanges(row *content.Node, fm *frontmatter.Frontmatter) {
	row.Title = fm.Title
	row.Status = fm.Status
	row.Maturity = content.Maturity(fm.Maturity)
	row.Topic = fm.Topic
	row.URL = fm.URL
	row.Archived = fm.Archived
	row.SupersededBy = fm.SupersededBy
	row.Priority = fm.Priority
	row.Impact = fm.Impact
	row.Effort = fm.Effort
	row.Tags = fm.Tags
	row.Aliases = fm.Aliases
}

func toStoreRow(n *content.Node) *store.NodeRow {
	return &store.NodeRow{
		ID: n.ID, Type: string(n.Type), Subtype: n.Subtype, Title: n.Title,
		Status: n.Status, Maturity: string(n.Maturity), Topic: n.Topic,
		Archived: n.Archived, Created: n.Created, Modified: n.Modified,
		SupersededBy: n.SupersededBy, URL: n.URL, Session: n.Session,
		ContentHash: n.ContentHash, Priority: n.Priority, Impact: n.Impact, Effort: n.Effort,
		PageRank: n.PageRank, DegreeIn: n.DegreeIn, DegreeOut: n.DegreeOut,
		Betweenness: n.Betweenness, ClusterID: n.ClusterID, Aliases: n.Aliases,
	}
}
