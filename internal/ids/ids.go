// Package ids implements the ID & path scheme (spec.md §4.1): stable
// opaque IDs for notes and references derived from a normalized-title
// hash, sequential counters for tasks and logs, and the canonical on-disk
// path for each.
//
// The hash-based scheme is grounded in the teacher's internal/idgen/hash.go,
// generalized from a content+nonce hash to spec.md's title-only hash so
// that identical titles collide deterministically rather than being
// disambiguated by a nonce. IDs are hex-encoded, not base36.
package ids

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind identifies the content type a path/id scheme applies to.
type Kind string

const (
	KindNote      Kind = "note"
	KindReference Kind = "reference"
	KindTask      Kind = "task"
	KindLog       Kind = "log"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeTitle applies spec.md's canonical normalization: NFKC, lowercase,
// collapsed whitespace. Two titles that normalize identically always yield
// the same hash-based ID, which is how create-pipeline collision detection
// (spec.md §4.4 step 2) works.
func NormalizeTitle(title string) string {
	t := norm.NFKC.String(title)
	t = strings.ToLower(t)
	t = strings.TrimSpace(whitespaceRe.ReplaceAllString(t, " "))
	return t
}

// HashID computes the deterministic hex8 id for a note or reference title:
// the first 64 bits of SHA-256(normalized title), hex-encoded, prefixed by
// the kind's prefix ("note_" or "ref_").
func HashID(kind Kind, title string) (string, error) {
	prefix, err := prefixFor(kind)
	if err != nil {
		return "", err
	}
	normalized := NormalizeTitle(title)
	sum := sha256.Sum256([]byte(normalized))
	hi := binary.BigEndian.Uint64(sum[:8])
	return fmt.Sprintf("%s_%016x", prefix, hi), nil
}

func prefixFor(kind Kind) (string, error) {
	switch kind {
	case KindNote:
		return "note", nil
	case KindReference:
		return "ref", nil
	default:
		return "", fmt.Errorf("ids: kind %q has no hash-based scheme", kind)
	}
}

// CounterID formats a sequential counter id, e.g. CounterID(KindTask, 7) ->
// "TASK-0007". Width is the minimum zero-padded width per spec.md (4+
// digits); counters beyond 9999 simply widen, they are never truncated.
func CounterID(kind Kind, n int64) (string, error) {
	label, err := counterLabel(kind)
	if err != nil {
		return "", err
	}
	digits := strconv.FormatInt(n, 10)
	if len(digits) < 4 {
		digits = strings.Repeat("0", 4-len(digits)) + digits
	}
	return fmt.Sprintf("%s-%s", label, digits), nil
}

func counterLabel(kind Kind) (string, error) {
	switch kind {
	case KindTask:
		return "TASK", nil
	case KindLog:
		return "LOG", nil
	default:
		return "", fmt.Errorf("ids: kind %q has no counter-based scheme", kind)
	}
}

// CounterName is the name under which a content kind's sequence is tracked
// in the index store's counters table.
func CounterName(kind Kind) (string, error) {
	switch kind {
	case KindTask:
		return "task", nil
	case KindLog:
		return "log", nil
	default:
		return "", fmt.Errorf("ids: kind %q is not counter-backed", kind)
	}
}

// Path computes the canonical on-disk path for a content item, relative to
// the vault root, per spec.md §4.1 and §6:
//
//	notes/[<topic>/]<id>.md       (note, reference)
//	ops/tasks/<id>.md             (task)
//	ops/logs/<id>.jsonl           (log)
func Path(kind Kind, id, topic string) (string, error) {
	switch kind {
	case KindNote, KindReference:
		if topic != "" {
			return filepath.Join("notes", topic, id+".md"), nil
		}
		return filepath.Join("notes", id+".md"), nil
	case KindTask:
		return filepath.Join("ops", "tasks", id+".md"), nil
	case KindLog:
		return filepath.Join("ops", "logs", id+".jsonl"), nil
	default:
		return "", fmt.Errorf("ids: unknown kind %q", kind)
	}
}

// Space returns the coarse top-level directory class a kind belongs to, used
// as a filter facet in the query engine (spec.md §4.10, GLOSSARY "Space").
func Space(kind Kind) string {
	switch kind {
	case KindNote, KindReference:
		return "notes"
	default:
		return "ops"
	}
}
