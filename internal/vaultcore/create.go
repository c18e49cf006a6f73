package vaultcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/ids"
	"github.com/knotvault/knot/internal/store"
	"go.uber.org/zap"
)

// CreateInput is the public input to Create, mirroring content.CreateInput
// plus the session id a caller may be logging under.
type CreateInput struct {
	Type     content.Type
	Subtype  string
	Title    string
	Tags     []string
	Topic    string
	URL      string
	Priority *int
	Impact   *int
	Effort   *int
	Maturity content.Maturity
	Session  string

	KeyPoints []string
}

func kindFor(t content.Type) ids.Kind {
	switch t {
	case content.TypeNote:
		return ids.KindNote
	case content.TypeReference:
		return ids.KindReference
	case content.TypeTask:
		return ids.KindTask
	case content.TypeLog:
		return ids.KindLog
	default:
		return ids.Kind(t)
	}
}

func hashBased(k ids.Kind) bool {
	return k == ids.KindNote || k == ids.KindReference
}

// Create runs the six-stage create pipeline of spec.md §4.4: validate,
// generate id, persist (render + atomic write + insert), index (FTS/tags/
// links + optional session log), dispatch post_create, and — for notes and
// references only — tail into reweave outside the write transaction, with
// any reweave failure downgraded to a warning.
func (v *Vault) Create(ctx context.Context, in CreateInput) (*content.Node, []string, error) {
	var warnings []string

	model, err := v.Models.Lookup(in.Type, in.Subtype)
	if err != nil {
		return nil, nil, err
	}
	cin := content.CreateInput{
		Type: in.Type, Subtype: in.Subtype, Title: in.Title, Tags: in.Tags, Topic: in.Topic,
		URL: in.URL, Priority: in.Priority, Impact: in.Impact, Effort: in.Effort,
		Maturity: in.Maturity, Session: in.Session, KeyPoints: in.KeyPoints,
	}
	w, err := model.ValidateCreate(cin)
	warnings = append(warnings, w...)
	if err != nil {
		return nil, warnings, err
	}

	kind := kindFor(in.Type)
	now := nowFunc()

	var id string
	if hashBased(kind) {
		id, err = ids.HashID(kind, in.Title)
		if err != nil {
			return nil, warnings, apperr.Wrap(apperr.ValidationFailed, "generate id", err)
		}
		_, lookupErr := v.Store.FetchNode(ctx, id)
		switch {
		case lookupErr == nil:
			return nil, warnings, apperr.Newf(apperr.IdCollision, "a %s titled %q already exists as %s", in.Type, in.Title, id).
				WithDetail(map[string]any{"id": id})
		case errors.Is(lookupErr, store.ErrNotFound):
			// expected: no existing node with this id, safe to create
		default:
			return nil, warnings, apperr.Wrap(apperr.StorageRecoverable, "check id collision", lookupErr)
		}
	}

	status := model.Transitions().Initial

	var row *store.NodeRow
	var snap fileSnapshot
	var fullPath string
	var body string

	err = v.Store.Transaction(ctx, func(tx *store.Tx) error {
		if !hashBased(kind) {
			counterName, cErr := ids.CounterName(kind)
			if cErr != nil {
				return apperr.Wrap(apperr.ValidationFailed, "counter name", cErr)
			}
			n, cErr := tx.NextCounter(ctx, counterName)
			if cErr != nil {
				return cErr
			}
			id, cErr = ids.CounterID(kind, n)
			if cErr != nil {
				return apperr.Wrap(apperr.ValidationFailed, "format counter id", cErr)
			}
		}

		relPath, pErr := ids.Path(kind, id, in.Topic)
		if pErr != nil {
			return apperr.Wrap(apperr.ValidationFailed, "compute path", pErr)
		}
		fullPath = filepath.Join(v.Root, relPath)

		var sErr error
		snap, sErr = snapshotFile(fullPath)
		if sErr != nil {
			return sErr
		}

		tmplName, tctx := model.InitialBodyTemplate(cin)
		var rErr error
		body, rErr = v.Templates.Render(tmplName, tctx)
		if rErr != nil {
			return apperr.Wrap(apperr.StorageFatal, "render initial body", rErr)
		}

		fm := &frontmatter.Frontmatter{
			ID: id, Type: string(in.Type), Title: in.Title, Created: now,
			Subtype: in.Subtype, Status: status, Tags: in.Tags, Topic: in.Topic,
			Maturity: string(in.Maturity), URL: in.URL, Priority: in.Priority,
			Impact: in.Impact, Effort: in.Effort, Session: in.Session,
		}
		data, eErr := frontmatter.Emit(fm, body)
		if eErr != nil {
			return apperr.Wrap(apperr.StorageFatal, "emit frontmatter", eErr)
		}
		if wErr := writeFileAtomic(fullPath, data); wErr != nil {
			return wErr
		}

		sum := sha256.Sum256(data)
		row = &store.NodeRow{
			ID: id, Type: string(in.Type), Subtype: in.Subtype, Title: in.Title,
			Status: status, Maturity: string(in.Maturity), Topic: in.Topic,
			Created: now, Modified: now, URL: in.URL, Session: in.Session,
			ContentHash: hex.EncodeToString(sum[:]),
			Priority:    in.Priority, Impact: in.Impact, Effort: in.Effort,
		}
		if iErr := tx.InsertNode(ctx, row); iErr != nil {
			if restoreErr := snap.restore(); restoreErr != nil {
				v.log.Warn("failed to restore file after insert failure", zap.Error(restoreErr))
			}
			// Sequential counter ids cannot legitimately collide; any
			// unique-constraint failure here points at index corruption,
			// not a normal create-time collision (those are caught above
			// for hash-based ids before the transaction even starts).
			return apperr.Wrap(apperr.StorageFatal, "insert node", iErr)
		}

		if iErr := tx.UpsertFTS(ctx, id, in.Title, body); iErr != nil {
			return iErr
		}
		if iErr := tx.IndexTags(ctx, id, in.Tags, now); iErr != nil {
			return iErr
		}
		if iErr := tx.IndexLinks(ctx, id, nil, body, now, v.Store.ResolveTitle); iErr != nil {
			return iErr
		}
		if in.Session != "" {
			if lErr := tx.AppendSessionLog(ctx, store.SessionLogRow{
				EntryID: "evt_" + id, SessionID: in.Session, Timestamp: now,
				Message: fmt.Sprintf("created %s %s", in.Type, id),
				Detail: "{}", References: fmt.Sprintf("[%q]", id), Metadata: "{}",
			}); lErr != nil {
				return lErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, warnings, err
	}

	v.Graph.Invalidate()

	payload := map[string]any{"id": id, "type": string(in.Type), "subtype": in.Subtype}
	if in.Session != "" {
		payload["session_id"] = in.Session
	}
	if dErr := v.Bus.Dispatch(ctx, eventbus.HookPostCreate, payload, false); dErr != nil {
		warnings = append(warnings, fmt.Sprintf("post_create dispatch failed: %v", dErr))
	}

	if v.Reweave != nil && (in.Type == content.TypeNote || in.Type == content.TypeReference) {
		rw, rErr := v.Reweave.OnCreate(ctx, id)
		warnings = append(warnings, rw...)
		if rErr != nil {
			warnings = append(warnings, fmt.Sprintf("reweave after create failed: %v", rErr))
		}
	}

	node := toNodeRow(row)
	node.Tags = in.Tags
	return node, warnings, nil
}
