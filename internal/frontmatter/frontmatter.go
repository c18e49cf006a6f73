// Package frontmatter parses and emits the YAML-like frontmatter header of
// vault Markdown files (spec.md §1/§4.1/§6), and extracts wikilinks from
// Markdown body text.
//
// Per spec.md §9 ("Frontmatter YAML: treat as a restricted subset —
// scalar strings, bool, int, float, list of scalars, and one-level maps"),
// the wire type is a concrete Go struct rather than a generic map: YAML
// shapes richer than that subset are rejected on read, keys the struct does
// not name are dropped on read rather than passed through, and the
// struct's field order is the canonical key order
// on write (gopkg.in/yaml.v3 marshals struct fields in declaration order,
// so canonical ordering falls out of the type definition rather than a
// second sorting pass).
package frontmatter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// Frontmatter is the canonical, ordered representation of a content item's
// structured metadata. Field order here IS the canonical key order.
type Frontmatter struct {
	ID      string    `yaml:"id"`
	Type    string    `yaml:"type"`
	Title   string    `yaml:"title"`
	Created time.Time `yaml:"created"`

	Subtype   string   `yaml:"subtype,omitempty"`
	Status    string   `yaml:"status,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	Topic     string   `yaml:"topic,omitempty"`
	Maturity  string   `yaml:"maturity,omitempty"`
	Aliases   []string `yaml:"aliases,omitempty"`
	URL       string   `yaml:"url,omitempty"`
	Priority  *int     `yaml:"priority,omitempty"`
	Impact    *int     `yaml:"impact,omitempty"`
	Effort    *int     `yaml:"effort,omitempty"`
	Archived  bool     `yaml:"archived,omitempty"`

	SupersededBy string `yaml:"superseded_by,omitempty"`
	Supersedes   string `yaml:"supersedes,omitempty"`
	Session      string `yaml:"session,omitempty"`

	Modified *time.Time `yaml:"modified,omitempty"`

	// Links maps a link kind ("relates", "supersedes", "derived_from", ...)
	// to the list of target ids.
	Links map[string][]string `yaml:"links,omitempty"`
}

// requiredKeys names the keys that must be present for a file to parse.
var requiredKeys = []string{"id", "type", "title", "created"}

// Parse splits raw file content into frontmatter and body, validating that
// the restricted subset is respected and all required keys are present.
func Parse(raw []byte) (*Frontmatter, string, error) {
	text := string(raw)
	if !strings.HasPrefix(text, fence) {
		return nil, "", fmt.Errorf("frontmatter: file does not start with %q fence", fence)
	}

	rest := text[len(fence):]
	rest = strings.TrimPrefix(rest, "\n")
	closeIdx := strings.Index(rest, "\n"+fence)
	if closeIdx < 0 {
		return nil, "", fmt.Errorf("frontmatter: no closing %q fence found", fence)
	}
	header := rest[:closeIdx]
	afterClose := rest[closeIdx+len("\n"+fence):]
	body := strings.TrimPrefix(afterClose, "\n")

	// Validate the restricted subset by round-tripping through a generic
	// node first: reject anything deeper than scalar/list-of-scalar/
	// one-level map.
	var generic yaml.Node
	if err := yaml.Unmarshal([]byte(header), &generic); err != nil {
		return nil, "", fmt.Errorf("frontmatter: invalid yaml: %w", err)
	}
	if err := validateRestrictedSubset(&generic); err != nil {
		return nil, "", err
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, "", fmt.Errorf("frontmatter: %w", err)
	}

	present := map[string]bool{}
	var root *yaml.Node
	if generic.Kind == yaml.DocumentNode && len(generic.Content) == 1 {
		root = generic.Content[0]
	}
	if root != nil && root.Kind == yaml.MappingNode {
		for i := 0; i < len(root.Content); i += 2 {
			present[root.Content[i].Value] = true
		}
	}
	var missing []string
	for _, k := range requiredKeys {
		if !present[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, "", fmt.Errorf("frontmatter: missing required keys: %s", strings.Join(missing, ", "))
	}

	return &fm, body, nil
}

// validateRestrictedSubset rejects any YAML node shape beyond: scalars,
// lists of scalars, and one level of nested mapping (used by `links`).
func validateRestrictedSubset(doc *yaml.Node) error {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return fmt.Errorf("frontmatter: expected a single mapping document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("frontmatter: top level must be a mapping")
	}
	for i := 0; i < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]
		if err := validateValueNode(key, val, 0); err != nil {
			return err
		}
	}
	return nil
}

func validateValueNode(key string, val *yaml.Node, depth int) error {
	switch val.Kind {
	case yaml.ScalarNode:
		return nil
	case yaml.SequenceNode:
		for _, item := range val.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("frontmatter: key %q: lists must contain only scalars", key)
			}
		}
		return nil
	case yaml.MappingNode:
		if depth >= 1 {
			return fmt.Errorf("frontmatter: key %q: maps may nest at most one level", key)
		}
		for i := 0; i < len(val.Content); i += 2 {
			subKey := val.Content[i].Value
			subVal := val.Content[i+1]
			if subVal.Kind == yaml.SequenceNode {
				for _, item := range subVal.Content {
					if item.Kind != yaml.ScalarNode {
						return fmt.Errorf("frontmatter: key %q.%q: lists must contain only scalars", key, subKey)
					}
				}
				continue
			}
			if err := validateValueNode(key+"."+subKey, subVal, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("frontmatter: key %q: unsupported yaml node kind", key)
	}
}

// Emit renders frontmatter + body back into the canonical on-disk form,
// fences included. Key order is exactly the Frontmatter struct's field
// order.
func Emit(fm *Frontmatter, body string) ([]byte, error) {
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(fence)
	buf.WriteString("\n")
	buf.Write(header)
	buf.WriteString(fence)
	buf.WriteString("\n")
	if body != "" {
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|[^\[\]]*?)?\]\]`)

// ExtractWikilinks returns the ordered, de-duplicated list of `[[Title]]`
// (optionally `[[Title|Alias]]`) tokens found in body text.
func ExtractWikilinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		title := strings.TrimSpace(m[1])
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		out = append(out, title)
	}
	return out
}
