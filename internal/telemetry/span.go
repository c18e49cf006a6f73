// Package telemetry implements the traced-scope primitive described in
// spec.md §9: a no-op-when-disabled span tree that accrues under a
// task-local current-span pointer, attached to result.meta.telemetry by
// building a new envelope value (results are immutable; spans are never
// mutated after the envelope that references them is returned).
//
// This intentionally does not wrap an external tracing SDK: the span tree
// here is consumed only in-process (folded into the result envelope), never
// exported to a collector, so there is nothing for a full tracing SDK to do
// that a plain value type doesn't already do more simply.
package telemetry

import (
	"context"
	"time"
)

// Span is one node of the telemetry tree attached to a result envelope.
type Span struct {
	Name        string         `json:"name"`
	DurationMS  float64        `json:"duration_ms"`
	Children    []*Span        `json:"children,omitempty"`
	Tokens      int            `json:"tokens,omitempty"`
	Cost        float64        `json:"cost,omitempty"`
	Annotations map[string]any `json:"annotations,omitempty"`

	start time.Time
}

type ctxKey struct{}

// recorder is the mutable accumulator behind a traced scope. It is never
// exposed outside this package; callers interact only through Scope/End and
// the frozen Span tree returned by Root.
type recorder struct {
	enabled bool
	root    *Span
	current *Span
}

// NewRecorder creates a recorder; spans accumulate only when enabled is
// true. A disabled recorder's Scope calls are free (no allocation beyond
// the closure).
func NewRecorder(enabled bool) *recorder {
	return &recorder{enabled: enabled}
}

// WithRecorder installs r as the task-local current recorder for ctx.
func WithRecorder(ctx context.Context, r *recorder) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

func fromContext(ctx context.Context) *recorder {
	r, _ := ctx.Value(ctxKey{}).(*recorder)
	return r
}

// Scope opens a span named `name`, runs fn with a context carrying the new
// current-span pointer, and closes the span on return (success or error).
// When the installed recorder is disabled or absent, Scope is a pure
// pass-through: no span is recorded.
func Scope(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	r := fromContext(ctx)
	if r == nil || !r.enabled {
		return fn(ctx)
	}

	span := &Span{Name: name, start: time.Now()}
	parent := r.current
	if parent == nil {
		r.root = span
	} else {
		parent.Children = append(parent.Children, span)
	}

	child := &recorder{enabled: true, current: span, root: r.root}
	err := fn(WithRecorder(ctx, child))

	span.DurationMS = float64(time.Since(span.start).Microseconds()) / 1000.0
	return err
}

// Annotate attaches a key/value annotation to the current span, if any.
func Annotate(ctx context.Context, key string, value any) {
	r := fromContext(ctx)
	if r == nil || !r.enabled || r.current == nil {
		return
	}
	if r.current.Annotations == nil {
		r.current.Annotations = make(map[string]any)
	}
	r.current.Annotations[key] = value
}

// AddCost accrues token/cost figures onto the current span.
func AddCost(ctx context.Context, tokens int, cost float64) {
	r := fromContext(ctx)
	if r == nil || !r.enabled || r.current == nil {
		return
	}
	r.current.Tokens += tokens
	r.current.Cost += cost
}

// Root returns the completed span tree, or nil if telemetry was disabled or
// nothing was ever scoped.
func Root(ctx context.Context) *Span {
	r := fromContext(ctx)
	if r == nil {
		return nil
	}
	return r.root
}
