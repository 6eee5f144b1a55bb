// ABOUTME: Watch registry mapping target usernames to field-scoped subscriptions
// ABOUTME: Notifies every subscriber of a target with its projected view of the document

package watch

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/2389/docwatch/internal/document"
)

// Subscriber receives change notifications. Notify must not block for long;
// transports queue the message and return.
type Subscriber interface {
	Notify(target string, view *document.Document) error
}

type entry struct {
	sub     Subscriber
	fields  []string
	watcher string
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	targets map[string][]*entry
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		targets: make(map[string][]*entry),
		logger:  logger.With("component", "watch"),
	}
}

// Add subscribes sub to target. Watching the same target again adds a second
// entry rather than replacing the first. An empty fields list means the
// whole document.
func (r *Registry) Add(target string, sub Subscriber, fields []string, watcher string) {
	r.mu.Lock()
	r.targets[target] = append(r.targets[target], &entry{
		sub:     sub,
		fields:  slices.Clone(fields),
		watcher: watcher,
	})
	r.mu.Unlock()

	r.logger.Debug("watcher added", "target", target, "watcher", watcher, "fields", fields)
}

// Remove drops every entry sub holds on target. The target key is deleted
// once it has no entries left.
func (r *Registry) Remove(target string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(target, sub)
}

// RemoveAll drops sub's entries on each of targets. Sessions pass the set of
// targets they watched so teardown never scans the whole registry.
func (r *Registry) RemoveAll(sub Subscriber, targets []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, target := range targets {
		r.removeLocked(target, sub)
	}
}

// RemoveTarget drops every entry on target.
func (r *Registry) RemoveTarget(target string) {
	r.mu.Lock()
	delete(r.targets, target)
	r.mu.Unlock()
}

func (r *Registry) removeLocked(target string, sub Subscriber) {
	entries, ok := r.targets[target]
	if !ok {
		return
	}

	// Build a fresh slice; notifiers may still be ranging over the old one.
	kept := make([]*entry, 0, len(entries))
	for _, e := range entries {
		if e.sub != sub {
			kept = append(kept, e)
		}
	}

	if len(kept) == 0 {
		delete(r.targets, target)
	} else {
		r.targets[target] = kept
	}

	if removed := len(entries) - len(kept); removed > 0 {
		r.logger.Debug("watcher removed", "target", target, "entries", removed)
	}
}

// Notify delivers doc to every subscriber of its owner. A failed delivery is
// logged and does not stop the others.
func (r *Registry) Notify(doc *document.Document) {
	target := doc.Username()

	r.mu.RLock()
	entries := r.targets[target]
	r.mu.RUnlock()

	for _, e := range entries {
		view := document.Project(doc, e.fields)
		if err := e.sub.Notify(target, view); err != nil {
			r.logger.Warn("change delivery failed",
				"target", target,
				"watcher", e.watcher,
				"error", err)
		}
	}
}

// Count returns the number of entries on target.
func (r *Registry) Count(target string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets[target])
}

// Targets returns the number of usernames with at least one entry.
func (r *Registry) Targets() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}
