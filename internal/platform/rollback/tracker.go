// Package rollback records the side effects of a multi-step write so they can
// be undone, newest first, when a later step fails.
package rollback

import (
	"context"
	"fmt"
	"sync"
)

// Kind labels the resource a tracked step created.
type Kind string

const (
	KindFile     Kind = "file"
	KindDocument Kind = "document"
	KindTeam     Kind = "team"
)

// UndoFunc reverses a single completed step.
type UndoFunc func(ctx context.Context) error

// Logger receives structured rollback events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Entry is one completed step and its inverse.
type Entry struct {
	Kind Kind
	ID   string
	undo UndoFunc
}

// Tracker is a per-operation compensation log. It is safe for concurrent
// Track calls from fan-out goroutines.
type Tracker struct {
	mu      sync.Mutex
	entries []Entry
	logger  Logger
}

// New returns an empty tracker.
func New(logger Logger) *Tracker {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Tracker{logger: logger}
}

// Track appends a completed step. The undo must be registered before the next step runs.
func (t *Tracker) Track(kind Kind, id string, undo UndoFunc) {
	if undo == nil {
		panic(fmt.Sprintf("rollback: nil undo for %s %s", kind, id))
	}
	t.mu.Lock()
	t.entries = append(t.entries, Entry{Kind: kind, ID: id, undo: undo})
	t.mu.Unlock()
}

// Entries returns a snapshot of the tracked steps in insertion order.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len reports how many steps are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Discard forgets every tracked step once the operation has committed.
func (t *Tracker) Discard() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

// Rollback runs every inverse in reverse insertion order. Individual failures
// are logged and skipped; the number of failed inverses is returned. The log
// is empty afterwards.
func (t *Tracker) Rollback(ctx context.Context) int {
	t.mu.Lock()
	entries := t.entries
	t.entries = nil
	t.mu.Unlock()

	if len(entries) == 0 {
		return 0
	}

	// The caller's context is usually already failing; compensation must still run.
	ctx = context.WithoutCancel(ctx)

	failed := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if err := runUndo(ctx, entry); err != nil {
			failed++
			t.logger(ctx, "rollback.step.failed", map[string]any{
				"kind":  string(entry.Kind),
				"id":    entry.ID,
				"error": err.Error(),
			})
			continue
		}
		t.logger(ctx, "rollback.step.undone", map[string]any{
			"kind": string(entry.Kind),
			"id":   entry.ID,
		})
	}
	t.logger(ctx, "rollback.completed", map[string]any{
		"steps":  len(entries),
		"failed": failed,
	})
	return failed
}

// RollbackOnError is meant to be deferred: it rolls back only when *errp is
// non-nil and never replaces the original error.
func (t *Tracker) RollbackOnError(ctx context.Context, errp *error) {
	if errp == nil || *errp == nil {
		return
	}
	t.Rollback(ctx)
}

func runUndo(ctx context.Context, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollback: undo %s %s panicked: %v", entry.Kind, entry.ID, r)
		}
	}()
	return entry.undo(ctx)
}
