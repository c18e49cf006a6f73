package plugin

import (
	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/content"
)

// dynamicModel adapts a plugin's declarative descriptor (spec.md §6
// "register_content_models hook returning a map of name -> content model")
// into a content.Model. Extensions describe subtypes with plain data rather
// than code, mirroring spec.md §9's guidance to model the registry "as a
// name-keyed map of content-model descriptors ... extensions extend the map
// at vault-open time": the executable half of an extension is its hooks, the
// declarative half is its content models.
type dynamicModel struct {
	key            string
	subtype        string
	baseType       content.Type
	titleRequired  bool
	initialStatus  string
	computed       bool
	allowed        map[string][]string
	templateName   string
	minKeyPoints   int
}

func (m *dynamicModel) Key() string { return m.key }

func (m *dynamicModel) ValidateCreate(in content.CreateInput) ([]string, error) {
	if m.titleRequired && in.Title == "" {
		return nil, apperr.New(apperr.ValidationFailed, "title is required")
	}
	var warnings []string
	if m.minKeyPoints > 0 && len(in.KeyPoints) < m.minKeyPoints {
		warnings = append(warnings, "fewer than the recommended number of key points")
	}
	return warnings, nil
}

func (m *dynamicModel) ValidateUpdate(node *content.Node, changes content.ChangeSet) ([]string, error) {
	if status, ok := changes["status"].(string); ok && !m.computed {
		if !m.Transitions().CanTransition(node.Status, status) {
			return nil, apperr.Newf(apperr.InvalidTransition, "cannot transition %s from %s to %s", m.key, node.Status, status)
		}
	}
	return nil, nil
}

func (m *dynamicModel) InitialBodyTemplate(in content.CreateInput) (string, map[string]any) {
	ctx := map[string]any{"title": in.Title, "subtype": m.subtype, "key_points": in.KeyPoints}
	return m.templateName, ctx
}

func (m *dynamicModel) Transitions() content.Transitions {
	return content.Transitions{Initial: m.initialStatus, Computed: m.computed, Allowed: m.allowed}
}

// buildDynamicModel converts one raw descriptor (as produced by an
// extension's RegisterContentModels) into a registered content.Model.
// Malformed descriptors return an error, which the caller downgrades to a
// warning and skips rather than failing the whole load.
func buildDynamicModel(baseType content.Type, subtype string, desc map[string]interface{}) (content.Model, error) {
	m := &dynamicModel{
		key:           key(baseType, subtype),
		subtype:       subtype,
		baseType:      baseType,
		titleRequired: true,
		initialStatus: "open",
		templateName:  "default",
	}
	if v, ok := desc["title_required"].(bool); ok {
		m.titleRequired = v
	}
	if v, ok := desc["initial_status"].(string); ok {
		m.initialStatus = v
	}
	if v, ok := desc["computed_status"].(bool); ok {
		m.computed = v
	}
	if v, ok := desc["template"].(string); ok {
		m.templateName = v
	}
	if v, ok := desc["min_key_points"].(int); ok {
		m.minKeyPoints = v
	}
	if v, ok := desc["transitions"].(map[string]interface{}); ok {
		m.allowed = make(map[string][]string, len(v))
		for from, toAny := range v {
			toList, ok := toAny.([]interface{})
			if !ok {
				return nil, apperr.Newf(apperr.InvalidFormat, "transitions[%s] must be a list of strings", from)
			}
			for _, t := range toList {
				if s, ok := t.(string); ok {
					m.allowed[from] = append(m.allowed[from], s)
				}
			}
		}
	}
	return m, nil
}

func key(t content.Type, subtype string) string {
	if subtype == "" {
		return string(t)
	}
	return string(t) + ":" + subtype
}
