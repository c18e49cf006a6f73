package content

import "github.com/knotvault/knot/internal/apperr"

// noteModel is the default model for plain notes (spec.md §4.3). Status is
// machine-computed from outgoing edge count by the update pipeline, never
// set directly by a create/update request.
type noteModel struct{}

func (noteModel) Key() string { return key(TypeNote, "") }

func (noteModel) ValidateCreate(in CreateInput) ([]string, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	var warnings []string
	if in.Subtype == SubtypeKnowledge && len(in.KeyPoints) == 0 {
		warnings = append(warnings, "knowledge notes are usually created with key points; none were given")
	}
	return warnings, nil
}

func (noteModel) ValidateUpdate(node *Node, changes ChangeSet) ([]string, error) {
	if err := rejectAlwaysImmutable(changes); err != nil {
		return nil, err
	}
	if changes.Has("status") {
		return nil, apperr.New(apperr.ValidationFailed, "note status is computed from link count and cannot be set directly")
	}
	return nil, nil
}

func (noteModel) InitialBodyTemplate(in CreateInput) (string, map[string]any) {
	tmpl := "note.md.tmpl"
	if in.Subtype != "" {
		tmpl = "note_" + in.Subtype + ".md.tmpl"
	}
	return tmpl, map[string]any{
		"title":      in.Title,
		"key_points": in.KeyPoints,
		"topic":      in.Topic,
	}
}

func (noteModel) Transitions() Transitions {
	return Transitions{
		Initial:  "draft",
		Computed: true,
		Allowed: map[string][]string{
			"draft":     {"linked", "connected"},
			"linked":    {"draft", "connected"},
			"connected": {"linked", "draft"},
		},
	}
}

// decisionModel is the note:decision subtype. Once accepted, the record is
// immutable except for a small allowlist (spec.md §4.3). Before acceptance,
// free-text "notes" guidance is accepted as iteration rather than rejected
// (SPEC_FULL.md §4 item 4), appended to the body instead of changing status.
type decisionModel struct{}

func (decisionModel) Key() string { return key(TypeNote, SubtypeDecision) }

func (decisionModel) ValidateCreate(in CreateInput) ([]string, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	return nil, nil
}

// postAcceptedAllowed are the only fields a decision may still change once
// its status is "accepted" or "superseded" (spec.md §4.3): the bookkeeping
// fields involved in being superseded by a later decision, plus
// reclassification (tags, topic, aliases) and the always-bumped modified
// timestamp. Free-text "notes" iteration (SPEC_FULL.md §4 item 4) is only
// available before acceptance, while status is still "proposed".
var postAcceptedAllowed = map[string]bool{
	"status":        true,
	"superseded_by": true,
	"modified":      true,
	"tags":          true,
	"aliases":       true,
	"topic":         true,
}

func (decisionModel) ValidateUpdate(node *Node, changes ChangeSet) ([]string, error) {
	if err := rejectAlwaysImmutable(changes); err != nil {
		return nil, err
	}
	if node.Status == "accepted" || node.Status == "superseded" {
		var bad []string
		for k := range changes {
			if !postAcceptedAllowed[k] {
				bad = append(bad, k)
			}
		}
		if len(bad) > 0 {
			return nil, apperr.Newf(apperr.ValidationFailed,
				"decision %s is %s; only status, superseded_by, modified, tags, aliases and topic may change, got %v", node.ID, node.Status, bad).
				WithDetail(map[string]any{"disallowed": bad})
		}
	}
	if changes.Has("status") {
		to, _ := changes["status"].(string)
		t := decisionModel{}.Transitions()
		if !t.CanTransition(node.Status, to) {
			return nil, apperr.Newf(apperr.InvalidTransition, "decision cannot move from %s to %s", node.Status, to)
		}
	}
	return nil, nil
}

func (decisionModel) InitialBodyTemplate(in CreateInput) (string, map[string]any) {
	return "note_decision.md.tmpl", map[string]any{
		"title": in.Title,
		"topic": in.Topic,
	}
}

func (decisionModel) Transitions() Transitions {
	return Transitions{
		Initial: "proposed",
		Allowed: map[string][]string{
			"proposed": {"accepted"},
			"accepted": {"superseded"},
		},
	}
}

// referenceModel covers external/captured material (spec.md §4.3).
type referenceModel struct{}

func (referenceModel) Key() string { return key(TypeReference, "") }

func (referenceModel) ValidateCreate(in CreateInput) ([]string, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	var warnings []string
	if in.URL == "" {
		warnings = append(warnings, "reference created without a url")
	}
	return warnings, nil
}

func (referenceModel) ValidateUpdate(node *Node, changes ChangeSet) ([]string, error) {
	if err := rejectAlwaysImmutable(changes); err != nil {
		return nil, err
	}
	if changes.Has("status") {
		to, _ := changes["status"].(string)
		t := referenceModel{}.Transitions()
		if !t.CanTransition(node.Status, to) {
			return nil, apperr.Newf(apperr.InvalidTransition, "reference cannot move from %s to %s", node.Status, to)
		}
	}
	return nil, nil
}

func (referenceModel) InitialBodyTemplate(in CreateInput) (string, map[string]any) {
	return "reference.md.tmpl", map[string]any{
		"title": in.Title,
		"url":   in.URL,
	}
}

func (referenceModel) Transitions() Transitions {
	return Transitions{
		Initial: "captured",
		Allowed: map[string][]string{
			"captured":  {"annotated"},
			"annotated": {"captured"},
		},
	}
}

// taskModel covers actionable work items (spec.md §4.3).
type taskModel struct{}

func (taskModel) Key() string { return key(TypeTask, "") }

func (taskModel) ValidateCreate(in CreateInput) ([]string, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validatePriority(in.Priority); err != nil {
		return nil, err
	}
	return nil, nil
}

func (taskModel) ValidateUpdate(node *Node, changes ChangeSet) ([]string, error) {
	if err := rejectAlwaysImmutable(changes); err != nil {
		return nil, err
	}
	if p, ok := changes["priority"]; ok {
		pi, _ := p.(*int)
		if err := validatePriority(pi); err != nil {
			return nil, err
		}
	}
	if changes.Has("status") {
		to, _ := changes["status"].(string)
		t := taskModel{}.Transitions()
		if !t.CanTransition(node.Status, to) {
			return nil, apperr.Newf(apperr.InvalidTransition, "task cannot move from %s to %s", node.Status, to)
		}
	}
	return nil, nil
}

func (taskModel) InitialBodyTemplate(in CreateInput) (string, map[string]any) {
	return "task.md.tmpl", map[string]any{
		"title":    in.Title,
		"priority": in.Priority,
	}
}

func (taskModel) Transitions() Transitions {
	return Transitions{
		Initial: "inbox",
		Allowed: map[string][]string{
			"inbox":   {"active", "dropped"},
			"active":  {"blocked", "done", "dropped"},
			"blocked": {"active", "dropped"},
			"done":    {},
			"dropped": {},
		},
	}
}

// logModel covers append-oriented session/incident logs (spec.md §4.3).
// Status toggles open/closed rather than advancing through a pipeline.
type logModel struct{}

func (logModel) Key() string { return key(TypeLog, "") }

func (logModel) ValidateCreate(in CreateInput) ([]string, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	return nil, nil
}

func (logModel) ValidateUpdate(node *Node, changes ChangeSet) ([]string, error) {
	if err := rejectAlwaysImmutable(changes); err != nil {
		return nil, err
	}
	if changes.Has("status") {
		to, _ := changes["status"].(string)
		t := logModel{}.Transitions()
		if !t.CanTransition(node.Status, to) {
			return nil, apperr.Newf(apperr.InvalidTransition, "log cannot move from %s to %s", node.Status, to)
		}
	}
	return nil, nil
}

func (logModel) InitialBodyTemplate(in CreateInput) (string, map[string]any) {
	return "log.md.tmpl", map[string]any{
		"title": in.Title,
	}
}

func (logModel) Transitions() Transitions {
	return Transitions{
		Initial: "open",
		Allowed: map[string][]string{
			"open":   {"closed"},
			"closed": {"open"},
		},
	}
}
