package integrity

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/ids"
	"github.com/knotvault/knot/internal/store"
)

func storeListFilterAll() store.ListFilter {
	return store.ListFilter{IncludeArchived: true}
}

func kindOf(t string) ids.Kind {
	switch t {
	case string(content.TypeNote):
		return ids.KindNote
	case string(content.TypeReference):
		return ids.KindReference
	case string(content.TypeTask):
		return ids.KindTask
	case string(content.TypeLog):
		return ids.KindLog
	default:
		return ""
	}
}

func findSupersededBy(rows []*store.NodeRow, id string) string {
	for _, n := range rows {
		if n.ID == id {
			return n.SupersededBy
		}
	}
	return ""
}

// connectedComponents groups node ids into undirected connected components.
func connectedComponents(rows []*store.NodeRow, adj map[string][]string) [][]string {
	visited := make(map[string]bool, len(rows))
	var components [][]string
	for _, n := range rows {
		if visited[n.ID] {
			continue
		}
		var comp []string
		stack := []string{n.ID}
		visited[n.ID] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, cur)
			for _, nb := range adj[cur] {
				if !visited[nb] {
					visited[nb] = true
					stack = append(stack, nb)
				}
			}
		}
		components = append(components, comp)
	}
	return components
}

// titleIndex maps every node's lowercased title to its id, used to check
// wikilink resolvability the same way store.ResolveTitle does.
func (e *Engine) titleIndex(ctx context.Context) (map[string]string, error) {
	rows, err := e.store.ListNodes(ctx, storeListFilterAll(), "n.id", 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, n := range rows {
		out[strings.ToLower(n.Title)] = n.ID
	}
	return out, nil
}

// queryStrings runs q (which must select exactly one text column) and
// collects the results.
func (e *Engine) queryStrings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := e.store.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "query", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, apperr.Wrap(apperr.StorageRecoverable, "scan", err)
		}
		out = append(out, s)
	}
	return out, apperr.Wrap(apperr.StorageRecoverable, "iterate", rows.Err())
}

// walkContentFiles walks the vault's notes/ and ops/ trees, extracting the
// id each file's frontmatter (or, for logs, its first JSONL record)
// declares, keyed by id.
func (e *Engine) walkContentFiles() (map[string]string, error) {
	out := make(map[string]string)
	roots := []string{filepath.Join(e.root, "notes"), filepath.Join(e.root, "ops")}
	for _, dir := range roots {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				if os.IsNotExist(walkErr) {
					return nil
				}
				return walkErr
			}
			if info.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(e.root, path)
			if relErr != nil {
				return nil
			}
			switch filepath.Ext(path) {
			case ".md":
				raw, rerr := os.ReadFile(path)
				if rerr != nil {
					return nil
				}
				fm, _, perr := frontmatter.Parse(raw)
				if perr != nil {
					return nil
				}
				out[fm.ID] = rel
			case ".jsonl":
				id := idFromLogFilename(path)
				if id != "" {
					out[id] = rel
				}
			}
			return nil
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.StorageRecoverable, "walk content files", err)
		}
	}
	return out, nil
}

func idFromLogFilename(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
