package content

import (
	"fmt"

	"github.com/knotvault/knot/internal/apperr"
)

// Transitions describes a content model's status state machine. For models
// whose status is machine-computed (note) rather than user-driven, Computed
// is true and Allowed is unused.
type Transitions struct {
	Initial  string
	Computed bool
	Allowed  map[string][]string
}

// CanTransition reports whether moving from `from` to `to` is legal.
// Staying in the same state is always legal (a no-op update).
func (t Transitions) CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	next, ok := t.Allowed[from]
	if !ok {
		return false
	}
	for _, n := range next {
		if n == to {
			return true
		}
	}
	return false
}

// Model is the uniform interface every (type, subtype) content model
// implements. Per spec.md §9 this replaces an inheritance tree with a
// tagged-variant-style registry of values holding function pointers.
type Model interface {
	// Key identifies the model, "note", "note:decision", "task", etc.
	Key() string
	// ValidateCreate checks a create request. Advisory issues are returned
	// as warnings; only structural problems are errors.
	ValidateCreate(in CreateInput) (warnings []string, err error)
	// ValidateUpdate checks a proposed change set against the current node
	// state, enforcing immutability and subtype-specific rules.
	ValidateUpdate(node *Node, changes ChangeSet) (warnings []string, err error)
	// InitialBodyTemplate names the template and context the create
	// pipeline should hand to the template collaborator (spec.md §4.6
	// external contract) to render the initial body.
	InitialBodyTemplate(in CreateInput) (templateName string, context map[string]any)
	// Transitions returns the status state machine.
	Transitions() Transitions
}

// immutableAlways are fields spec.md §3 invariant 2 says never change after
// creation, for every content model.
var immutableAlways = map[string]bool{"id": true, "type": true, "created": true}

func rejectAlwaysImmutable(changes ChangeSet) error {
	var bad []string
	for k := range changes {
		if immutableAlways[k] {
			bad = append(bad, k)
		}
	}
	if len(bad) > 0 {
		return apperr.Newf(apperr.ValidationFailed, "fields are immutable: %v", bad).
			WithDetail(map[string]any{"disallowed": bad})
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return apperr.New(apperr.ValidationFailed, "title is required")
	}
	if len(title) > 500 {
		return apperr.New(apperr.ValidationFailed, "title must be 500 characters or less")
	}
	return nil
}

func validatePriority(p *int) error {
	if p == nil {
		return nil
	}
	if *p < 0 || *p > 4 {
		return apperr.New(apperr.ValidationFailed, "priority must be between 0 and 4")
	}
	return nil
}

// Registry holds the vault's active content models, seeded with the
// built-ins and extended at vault-open time by extensions (spec.md §4.14).
type Registry struct {
	models map[string]Model
}

// NewRegistry builds a registry with the built-in content models
// registered.
func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]Model)}
	for _, m := range builtins() {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a content model under its own Key().
func (r *Registry) Register(m Model) {
	r.models[m.Key()] = m
}

// key composes the registry lookup key from (type, subtype).
func key(t Type, subtype string) string {
	if subtype == "" {
		return string(t)
	}
	return fmt.Sprintf("%s:%s", t, subtype)
}

// Lookup resolves a content model for (type, subtype), falling back to the
// bare type's model when no subtype-specific model is registered.
func (r *Registry) Lookup(t Type, subtype string) (Model, error) {
	if m, ok := r.models[key(t, subtype)]; ok {
		return m, nil
	}
	if subtype != "" {
		if m, ok := r.models[key(t, "")]; ok {
			return m, nil
		}
	}
	return nil, apperr.Newf(apperr.UnknownType, "no content model for type=%s subtype=%s", t, subtype)
}

func builtins() []Model {
	return []Model{
		&noteModel{},
		&decisionModel{},
		&referenceModel{},
		&taskModel{},
		&logModel{},
	}
}
