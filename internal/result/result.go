// Package result defines the uniform envelope returned by every public
// operation (spec.md §4.12). It is the sole surface the CLI, the remote
// protocol adapter, and extensions observe — internal packages never leak
// their own error or data shapes past this boundary.
package result

import (
	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/telemetry"
)

// ErrorInfo is the JSON-visible projection of an apperr.Error.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// Meta carries optional out-of-band information about how an operation was
// executed; everything in it is informational, never load-bearing for
// correctness.
type Meta struct {
	Telemetry *telemetry.Span `json:"telemetry,omitempty"`
}

// Envelope is the immutable `{ok, op, data, warnings, error, meta}` result
// contract. Once constructed it is never mutated; builders return a new
// Envelope value at every step (see telemetry.Span's same convention).
type Envelope struct {
	OK       bool       `json:"ok"`
	Op       string     `json:"op"`
	Data     any        `json:"data,omitempty"`
	Warnings []string   `json:"warnings"`
	Error    *ErrorInfo `json:"error"`
	Meta     *Meta      `json:"meta,omitempty"`
}

// Ok builds a successful envelope.
func Ok(op string, data any, warnings []string, meta *Meta) Envelope {
	if warnings == nil {
		warnings = []string{}
	}
	return Envelope{OK: true, Op: op, Data: data, Warnings: warnings, Meta: meta}
}

// Fail builds a failed envelope from an error. Non-*apperr.Error values are
// wrapped as an opaque infra failure so the envelope always carries a code.
func Fail(op string, err error, warnings []string, meta *Meta) Envelope {
	if warnings == nil {
		warnings = []string{}
	}
	info := &ErrorInfo{Code: string(apperr.CodeOf(err)), Message: err.Error()}
	var ae *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		ae = e
	}
	if ae != nil {
		info.Detail = ae.Detail
	} else {
		info.Code = "Internal"
	}
	return Envelope{OK: false, Op: op, Warnings: warnings, Error: info, Meta: meta}
}

// MetaFrom packages a telemetry span (possibly nil) into a *Meta, returning
// nil when there is nothing to report so `meta` stays absent in JSON.
func MetaFrom(span *telemetry.Span) *Meta {
	if span == nil {
		return nil
	}
	return &Meta{Telemetry: span}
}
