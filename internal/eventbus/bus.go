// Package eventbus implements the L5 event bus of spec.md §4.9:
// write-ahead-logged hook dispatch with retry, dead-letter, and drain.
// Dispatch never lets a hook's error or panic propagate to the caller,
// mirroring the teacher's internal/eventbus.Bus.Dispatch ("handler errors
// are logged but do not stop the chain"), generalized here from an
// in-memory-only dispatcher into one backed by the durable event_wal table
// so drain() can observe and retry across process restarts.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/store"
)

// Hook names (spec.md §4.9).
const (
	HookPostInit         = "post_init"
	HookPostCreate       = "post_create"
	HookPostUpdate       = "post_update"
	HookPostClose        = "post_close"
	HookPostReweave      = "post_reweave"
	HookPostSessionStart = "post_session_start"
	HookPostSessionClose = "post_session_close"
	HookPostCheck        = "post_check"
)

// Handler is one registered hook implementation for a given hook name.
// Plugin failures are warnings, never errors (spec.md invariant 6): a
// Handler returning an error only drives the WAL retry/dead-letter
// machinery, it never reaches the dispatch caller.
type Handler func(ctx context.Context, payload map[string]any) error

// Bus dispatches hook events through a durable WAL, using a bounded worker
// pool for the default async mode and inline execution when sync is
// requested (spec.md §4.9, §5).
type Bus struct {
	store    *store.Store
	log      *zap.Logger
	handlers map[string][]Handler
	mu       sync.RWMutex

	maxRetries int
	sem        *semaphore.Weighted
	inflight   sync.WaitGroup
}

// Config controls retry budget and worker pool size.
type Config struct {
	MaxRetries int // default 3, per spec.md §4.9
	Workers    int // default 2, per spec.md §5
}

// New constructs a Bus over store s.
func New(s *store.Store, cfg Config, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	return &Bus{
		store:      s,
		log:        log,
		handlers:   make(map[string][]Handler),
		maxRetries: cfg.MaxRetries,
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
	}
}

// Register adds a handler for a hook name; registration happens at
// vault-open time (spec.md §6 extension contract).
func (b *Bus) Register(hookName string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[hookName] = append(b.handlers[hookName], h)
}

// Dispatch appends a pending WAL row, then runs every registered handler
// for hookName. In async mode (default) dispatch returns once the WAL
// append commits and runs handlers on a pooled goroutine; in sync mode it
// blocks until handlers finish. The caller of Dispatch never observes a
// handler error.
func (b *Bus) Dispatch(ctx context.Context, hookName string, payload map[string]any, sync bool) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.StorageFatal, "marshal event payload", err)
	}
	sessionID, _ := payload["session_id"].(string)

	id := "evt_" + uuid.NewString()
	entry := store.EventWALEntry{
		ID: id, HookName: hookName, Payload: string(raw),
		SessionID: sessionID, Created: time.Now().UTC(),
	}
	err = b.store.Transaction(ctx, func(tx *store.Tx) error {
		return tx.AppendEvent(ctx, entry)
	})
	if err != nil {
		return apperr.Wrap(apperr.StorageRecoverable, "append event wal", err)
	}

	run := func() { b.runOnce(context.Background(), entry) }
	if sync {
		run()
		return nil
	}

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		if err := b.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer b.sem.Release(1)
		run()
	}()
	return nil
}

// runOnce invokes every handler registered for the entry's hook name,
// marking the WAL row completed or failed/dead_letter. Handler panics are
// recovered and treated as errors, since a plugin's exception must never
// escape (spec.md invariant 6).
func (b *Bus) runOnce(ctx context.Context, entry store.EventWALEntry) {
	var payload map[string]any
	_ = json.Unmarshal([]byte(entry.Payload), &payload)

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[entry.HookName]...)
	b.mu.RUnlock()

	if err := b.invokeAll(ctx, handlers, payload); err != nil {
		b.recordFailure(ctx, entry, err)
		return
	}
	now := time.Now().UTC()
	if err := b.store.MarkEventStatus(ctx, entry.ID, store.EventCompleted, entry.Retries, "", &now); err != nil {
		b.log.Warn("mark event completed failed", zap.String("id", entry.ID), zap.Error(err))
	}
}

func (b *Bus) invokeAll(ctx context.Context, handlers []Handler, payload map[string]any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	for _, h := range handlers {
		if hErr := h(ctx, payload); hErr != nil {
			err = hErr
		}
	}
	return err
}

func (b *Bus) recordFailure(ctx context.Context, entry store.EventWALEntry, cause error) {
	retries := entry.Retries + 1
	status := store.EventFailed
	if retries >= b.maxRetries {
		status = store.EventDeadLetter
	}
	if err := b.store.MarkEventStatus(ctx, entry.ID, status, retries, cause.Error(), nil); err != nil {
		b.log.Warn("mark event failure failed", zap.String("id", entry.ID), zap.Error(err))
	}
}

// Drain blocks until every in-flight dispatch settles, then retries every
// pending/failed WAL row synchronously up to the retry budget, using an
// exponential backoff between attempts within a single drain call (spec.md
// §4.9 drain, §4.8 step 6).
func (b *Bus) Drain(ctx context.Context) error {
	b.inflight.Wait()

	entries, err := b.store.PendingOrFailed(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StorageRecoverable, "load pending events for drain", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			return b.retrySynchronously(gctx, e)
		})
	}
	return g.Wait()
}

func (b *Bus) retrySynchronously(ctx context.Context, entry store.EventWALEntry) error {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.maxRetries-entry.Retries))
	return backoff.Retry(func() error {
		b.runOnce(ctx, entry)
		latest, err := b.store.PendingOrFailed(ctx)
		if err != nil {
			return nil // stop retrying on storage trouble; drain already logged it
		}
		for _, l := range latest {
			if l.ID == entry.ID {
				entry = l
				return fmt.Errorf("still pending")
			}
		}
		return nil
	}, bo)
}
