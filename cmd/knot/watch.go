package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchDebounce time.Duration

// watchCmd watches the vault's content directories for changes made
// outside of knot (an editor save, a git checkout, a sync client) and
// triggers an integrity re-scan, debounced so a burst of saves collapses
// into one scan, grounded in the fsnotify-based watcher of the codenerd
// example repo's mangle package.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch the vault for externally-made changes and re-scan integrity",
	Run: func(cmd *cobra.Command, args []string) {
		run("watch", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			return nil, nil, doWatch(ctx, a)
		})
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a re-scan fires")
}

func doWatch(ctx context.Context, a *app) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer w.Close()

	dirs := []string{
		filepath.Join(a.root, "notes"),
		filepath.Join(a.root, "ops", "tasks"),
		filepath.Join(a.root, "ops", "logs"),
	}
	for _, d := range dirs {
		if err := addRecursive(w, d); err != nil {
			a.log.Warn("watch: failed to watch directory", zap.String("dir", d), zap.Error(err))
		}
	}

	a.log.Info("watching vault for external changes", zap.String("root", a.root))

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if shouldIgnore(ev) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() { fire <- struct{}{} })
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("watch: watcher error", zap.Error(err))
		case <-fire:
			errCount, warnCount, err := a.check.Scan(ctx)
			if err != nil {
				a.log.Warn("watch: integrity re-scan failed", zap.Error(err))
				continue
			}
			a.log.Info("watch: integrity re-scan complete",
				zap.Int("errors", errCount), zap.Int("warnings", warnCount))
		}
	}
}

// shouldIgnore filters out fsnotify noise that doesn't correspond to a
// content file edit: chmod-only events and knot's own .tmp.* write-then-
// rename artifacts.
func shouldIgnore(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}
	return strings.Contains(filepath.Base(ev.Name), ".tmp.")
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
