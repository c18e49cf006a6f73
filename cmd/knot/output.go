package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/knotvault/knot/internal/result"
	"github.com/knotvault/knot/internal/telemetry"
)

// run executes one named public operation under an optional telemetry
// scope and renders its result.Envelope, per spec.md §4.12's uniform
// result contract. It never returns an error itself: a failed operation
// still exits cleanly with ok=false in the rendered envelope, matching
// the teacher's FatalErrorRespectJSON convention of never letting a
// command-level panic escape past JSON/text rendering.
func run(op string, fn func(ctx context.Context) (any, []string, error)) {
	rec := telemetry.NewRecorder(verboseFlag)
	ctx := telemetry.WithRecorder(context.Background(), rec)

	var data any
	var warnings []string
	var opErr error
	_ = telemetry.Scope(ctx, op, func(sctx context.Context) error {
		data, warnings, opErr = fn(sctx)
		return opErr
	})

	meta := result.MetaFrom(telemetry.Root(ctx))
	var env result.Envelope
	if opErr != nil {
		env = result.Fail(op, opErr, warnings, meta)
	} else {
		env = result.Ok(op, data, warnings, meta)
	}
	render(env)
	if !env.OK {
		os.Exit(1)
	}
}

func render(env result.Envelope) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(env)
		return
	}
	renderText(env)
}

// renderText is the human-readable fallback when --json is not set. It is
// intentionally plain: spec.md §1 places rich terminal rendering out of
// scope, so this only needs to be legible, not polished.
func renderText(env result.Envelope) {
	if !env.OK {
		fmt.Fprintf(os.Stderr, "error: [%s] %s\n", env.Error.Code, env.Error.Message)
	} else if !quietFlag {
		fmt.Printf("%s: ok\n", env.Op)
		if env.Data != nil {
			b, _ := json.MarshalIndent(env.Data, "", "  ")
			fmt.Println(string(b))
		}
	}
	for _, w := range env.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}

// openOrExit opens the app rooted at rootFlag, or prints a failed envelope
// and exits. Commands call this first so a broken vault surfaces through
// the same result contract as any other failure.
func openOrExit(ctx context.Context) *app {
	a, err := openApp(ctx, rootFlag, logger())
	if err != nil {
		render(result.Fail("open", err, nil, nil))
		os.Exit(1)
	}
	return a
}
