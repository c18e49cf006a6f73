// Package templates implements the L6 template collaborator contract of
// spec.md §6: given (template_name, context_map), render a string. A
// vault-local template directory overrides a packaged default set, using
// text/template the way the teacher's internal/compact package parses its
// prompt templates (template.New(...).Parse(...)) rather than a heavier
// templating engine.
package templates

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/knotvault/knot/internal/apperr"
)

//go:embed defaults/*.md.tmpl
var defaultsFS embed.FS

// Renderer is the template collaborator contract.
type Renderer interface {
	Render(templateName string, context map[string]any) (string, error)
}

// FileRenderer loads templates from a vault-local directory, falling back
// to the packaged defaults when a name isn't overridden locally. Parsed
// templates are cached; the vault directory is re-scanned only on miss.
type FileRenderer struct {
	vaultDir string

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewFileRenderer constructs a renderer rooted at vaultDir (the vault's
// template override directory; may not exist).
func NewFileRenderer(vaultDir string) *FileRenderer {
	return &FileRenderer{vaultDir: vaultDir, cache: make(map[string]*template.Template)}
}

// Render looks up templateName, preferring a vault-local override, and
// executes it against context.
func (r *FileRenderer) Render(templateName string, context map[string]any) (string, error) {
	tmpl, err := r.lookup(templateName)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", apperr.Wrap(apperr.StorageFatal, "execute template "+templateName, err)
	}
	return buf.String(), nil
}

func (r *FileRenderer) lookup(name string) (*template.Template, error) {
	r.mu.RLock()
	if t, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return t, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.cache[name]; ok {
		return t, nil
	}

	raw, err := r.read(name)
	if err != nil {
		return nil, err
	}
	t, err := template.New(name).Parse(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidFormat, "parse template "+name, err)
	}
	r.cache[name] = t
	return t, nil
}

func (r *FileRenderer) read(name string) (string, error) {
	if r.vaultDir != "" {
		local := filepath.Join(r.vaultDir, name)
		if b, err := os.ReadFile(local); err == nil {
			return string(b), nil
		}
	}
	b, err := defaultsFS.ReadFile("defaults/" + name)
	if err != nil {
		return "", apperr.Newf(apperr.FileNotFound, "no template named %q (vault-local or packaged)", name)
	}
	return string(b), nil
}
