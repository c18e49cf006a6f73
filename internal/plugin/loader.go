package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/content"
)

// pluginsDir returns <root>/<StateDirName>/plugins.
func (l *Loader) pluginsDir() string {
	return filepath.Join(l.root, StateDirName, "plugins")
}

// Discover lists local extension source files under the vault's plugins
// directory (spec.md §6 discovery source (b)). A missing directory yields
// an empty list, not an error: extensions are opt-in.
func (l *Loader) Discover() ([]string, error) {
	entries, err := os.ReadDir(l.pluginsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".go" {
			continue
		}
		files = append(files, filepath.Join(l.pluginsDir(), e.Name()))
	}
	return files, nil
}

// LoadAll discovers and evaluates every local extension file, registering
// whatever hooks and content models each one exports. Every failure - an
// unreadable plugins directory, missing file, parse error, eval error, a
// panicking RegisterHooks call - is caught and appended to Report.Warnings;
// the returned error is always nil (spec.md §6
// "failures during discovery or invocation produce warnings, never errors").
func (l *Loader) LoadAll(ctx context.Context) (*Report, error) {
	files, err := l.Discover()
	if err != nil {
		l.log.Warn("extension discovery failed", zap.Error(err))
		return &Report{Warnings: []string{fmt.Sprintf("discover extensions: %v", err)}}, nil
	}
	report := &Report{}
	for _, f := range files {
		if warn := l.loadOne(ctx, f); warn != "" {
			report.Warnings = append(report.Warnings, warn)
			l.log.Warn("extension load failed", zap.String("file", f), zap.String("reason", warn))
			continue
		}
		report.Loaded = append(report.Loaded, f)
	}
	return report, nil
}

// loadOne interprets a single extension file and registers its exports.
// It never panics: a panic from within the interpreted code (or from a
// malformed RegisterHooks/RegisterContentModels value) is recovered and
// turned into the returned warning string, grounded in codenerd's
// YaegiExecutor pattern of sandboxed, stdlib-only interpretation.
func (l *Loader) loadOne(ctx context.Context, path string) (warning string) {
	defer func() {
		if p := recover(); p != nil {
			warning = fmt.Sprintf("%s: panic during load: %v", path, p)
		}
	}()

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("%s: %v", path, err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Sprintf("%s: load stdlib symbols: %v", path, err)
	}

	if _, err := i.Eval(string(src)); err != nil {
		return fmt.Sprintf("%s: eval: %v", path, err)
	}

	if err := l.registerHooks(i, path); err != "" {
		return err
	}
	if err := l.registerContentModels(i, path); err != "" {
		return err
	}
	return ""
}

func (l *Loader) registerHooks(i *interp.Interpreter, path string) string {
	v, err := i.Eval("main.RegisterHooks")
	if err != nil {
		return "" // optional export
	}
	fn, ok := v.Interface().(func() map[string]func(map[string]interface{}) error)
	if !ok {
		return fmt.Sprintf("%s: RegisterHooks has the wrong signature", path)
	}
	if l.bus == nil {
		return ""
	}
	for name, h := range fn() {
		h := h
		l.bus.Register(name, func(ctx context.Context, payload map[string]any) error {
			return h(payload)
		})
	}
	return ""
}

func (l *Loader) registerContentModels(i *interp.Interpreter, path string) string {
	v, err := i.Eval("main.RegisterContentModels")
	if err != nil {
		return "" // optional export
	}
	fn, ok := v.Interface().(func() map[string]map[string]interface{})
	if !ok {
		return fmt.Sprintf("%s: RegisterContentModels has the wrong signature", path)
	}
	if l.models == nil {
		return ""
	}
	for name, desc := range fn() {
		baseType, subtype := splitModelName(name)
		m, berr := buildDynamicModel(baseType, subtype, desc)
		if berr != nil {
			return fmt.Sprintf("%s: content model %q: %v", path, name, berr)
		}
		l.models.Register(m)
	}
	return ""
}

// splitModelName parses an extension's model name ("note:protocol") into a
// base type and subtype, defaulting to note when no base type is given
// (spec.md's subtype list is itself note-flavored: "knowledge, decision,
// article, tool, spec, or extension-registered").
func splitModelName(name string) (content.Type, string) {
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		return content.Type(name[:idx]), name[idx+1:]
	}
	return content.TypeNote, name
}
