package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/ids"
	"github.com/knotvault/knot/internal/store"
)

var unlinkBoth bool

var unlinkCmd = &cobra.Command{
	Use:   "unlink <src-id> <dst-id>",
	Short: "remove the edge (and matching wikilinks) between two nodes",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		srcID, dstID := args[0], args[1]
		run("unlink", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			return doUnlink(ctx, a, srcID, dstID, unlinkBoth)
		})
	},
}

func init() {
	unlinkCmd.Flags().BoolVar(&unlinkBoth, "both", false, "also remove the reverse edge (the destination's body is not edited)")
}

// doUnlink reads the source node's current body off disk, since
// graph.Engine.Unlink is a pure function over store state plus caller-
// supplied text (it never touches the filesystem itself), then writes the
// edited body back only if the unlink actually changed it.
func doUnlink(ctx context.Context, a *app, srcID, dstID string, both bool) (any, []string, error) {
	src, err := a.store.FetchNode(ctx, srcID)
	if err != nil {
		return nil, nil, err
	}
	if src == nil {
		return nil, nil, apperr.Newf(apperr.NotFound, "node %q not found", srcID)
	}
	dst, err := a.store.FetchNode(ctx, dstID)
	if err != nil {
		return nil, nil, err
	}
	if dst == nil {
		return nil, nil, apperr.Newf(apperr.NotFound, "node %q not found", dstID)
	}

	srcPath, fm, body, err := readNodeFile(a.root, src)
	if err != nil {
		return nil, nil, err
	}

	res, err := a.graph.Unlink(ctx, srcID, dstID, both, src.Title, dst.Title, body, src.Maturity)
	if err != nil {
		return nil, nil, err
	}

	if res.BodyChanged {
		data, eErr := frontmatter.Emit(fm, res.NewBody)
		if eErr != nil {
			return nil, nil, apperr.Wrap(apperr.StorageFatal, "emit updated frontmatter", eErr)
		}
		if wErr := writeFileAtomicCLI(srcPath, data); wErr != nil {
			return nil, nil, wErr
		}
	}

	var warnings []string
	if res.BodyProtected {
		warnings = append(warnings, "source "+srcID+" has a maturity set; body wikilinks were left unchanged")
	}
	return res, warnings, nil
}

// readNodeFile resolves n's canonical path, reads it, and parses its
// frontmatter and body.
func readNodeFile(root string, n *store.NodeRow) (string, *frontmatter.Frontmatter, string, error) {
	kind := ids.Kind(n.Type)
	rel, err := ids.Path(kind, n.ID, n.Topic)
	if err != nil {
		return "", nil, "", apperr.Wrap(apperr.StorageFatal, "resolve node path", err)
	}
	full := filepath.Join(root, rel)
	raw, err := os.ReadFile(full)
	if err != nil {
		return "", nil, "", apperr.Wrap(apperr.StorageFatal, "read node file", err)
	}
	fm, body, err := frontmatter.Parse(raw)
	if err != nil {
		return "", nil, "", apperr.Wrap(apperr.StorageFatal, "parse node frontmatter", err)
	}
	return full, fm, body, nil
}

// writeFileAtomicCLI writes data to path via a temp-file-then-rename,
// mirroring internal/vaultcore's unexported writeFileAtomic (duplicated
// here since that helper isn't exported across the package boundary).
func writeFileAtomicCLI(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return apperr.Wrap(apperr.StorageFatal, "create temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(data); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "replace file", err)
	}
	return nil
}
