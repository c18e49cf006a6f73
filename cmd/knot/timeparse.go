package main

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/knotvault/knot/internal/apperr"
)

// sinceParser resolves natural-language relative times ("3 days ago",
// "last week") as well as RFC3339 timestamps for the --since filter
// (SPEC_FULL.md §2 domain stack: olebedev/when, the teacher's own
// dependency for this exact need).
var sinceParser = buildSinceParser()

func buildSinceParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseSince parses raw into a *time.Time, trying RFC3339 first (the
// machine-friendly form) and falling back to natural-language parsing
// relative to now. Empty input yields a nil filter (no since bound).
func parseSince(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	res, err := sinceParser.Parse(raw, time.Now())
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidFormat, "parse --since", err)
	}
	if res == nil {
		return nil, apperr.Newf(apperr.InvalidFormat, "could not understand --since value %q", raw)
	}
	return &res.Time, nil
}
