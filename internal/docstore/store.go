// ABOUTME: Document store combining a blob backend, an LRU cache and per-username locks
// ABOUTME: Enforces the serialized size limit and keeps the cache consistent with storage

package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/docwatch/internal/blob"
	"github.com/2389/docwatch/internal/cache"
	"github.com/2389/docwatch/internal/document"
)

// Options configures a Store.
type Options struct {
	CacheSize       int
	CacheMaxAge     time.Duration
	MaxDocumentSize int
}

// MutateFunc computes the successor of current. current is a private clone
// that the function may modify and return.
type MutateFunc func(current *document.Document) (*document.Document, error)

// Store reads and writes documents. It is safe for concurrent use.
type Store struct {
	blobs   blob.Store
	cache   *cache.Cache[*document.Document]
	locks   *keyLocks
	loads   singleflight.Group
	maxSize int
	logger  *slog.Logger
}

// New creates a Store over blobs.
func New(blobs blob.Store, opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		blobs:   blobs,
		cache:   cache.New[*document.Document](opts.CacheSize, opts.CacheMaxAge),
		locks:   newKeyLocks(),
		maxSize: opts.MaxDocumentSize,
		logger:  logger.With("component", "docstore"),
	}
}

// Read returns a copy of the current document for username.
// Returns document.ErrNotFound if no record exists.
func (s *Store) Read(ctx context.Context, username string) (*document.Document, error) {
	if doc, ok := s.cache.Get(username); ok {
		s.logger.Debug("cache hit", "username", username)
		return doc.Clone(), nil
	}

	// Concurrent misses share one load; the load takes the key lock so it
	// cannot race a write and put a stale snapshot into the cache. It outlives
	// the caller that started it, since other readers may be waiting on it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.loads.Do(username, func() (any, error) {
		unlock := s.locks.Lock(username)
		defer unlock()
		return s.load(loadCtx, username)
	})
	if err != nil {
		return nil, err
	}
	return v.(*document.Document).Clone(), nil
}

// Create persists doc only if no document exists for its username.
// Returns document.ErrExists otherwise.
func (s *Store) Create(ctx context.Context, doc *document.Document) error {
	username := doc.Username()
	unlock := s.locks.Lock(username)
	defer unlock()

	_, err := s.load(ctx, username)
	if err == nil {
		return fmt.Errorf("%w: %s", document.ErrExists, username)
	}
	if !errors.Is(err, document.ErrNotFound) {
		return err
	}
	return s.write(ctx, doc)
}

// Write persists doc unconditionally.
func (s *Store) Write(ctx context.Context, doc *document.Document) error {
	unlock := s.locks.Lock(doc.Username())
	defer unlock()
	return s.write(ctx, doc)
}

// Update loads the document for username, runs mutate on a clone and persists
// the result, all while holding the username's lock. If committed is non-nil
// it runs after persistence succeeds, still under the lock, so successive
// commits for one username are observed in version order. committed must not
// modify the document it receives. Any error leaves the stored document
// unchanged.
func (s *Store) Update(ctx context.Context, username string, mutate MutateFunc, committed func(*document.Document)) (*document.Document, error) {
	unlock := s.locks.Lock(username)
	defer unlock()

	current, err := s.load(ctx, username)
	if err != nil {
		return nil, err
	}

	next, err := mutate(current.Clone())
	if err != nil {
		return nil, err
	}
	if next.Username() != username {
		return nil, fmt.Errorf("%w: username cannot change", document.ErrSerialization)
	}

	if err := s.write(ctx, next); err != nil {
		return nil, err
	}

	if committed != nil {
		committed(next)
	}
	return next.Clone(), nil
}

// Evict drops username from the cache so the next read goes to storage.
func (s *Store) Evict(username string) {
	s.cache.Delete(username)
}

// Ping checks that the backend is reachable when it supports a health check.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.blobs.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close stops the cache and closes the backend.
func (s *Store) Close() error {
	s.cache.Close()
	return s.blobs.Close()
}

// load returns the cached snapshot or reads it from storage.
// Must be called with the username's lock held.
func (s *Store) load(ctx context.Context, username string) (*document.Document, error) {
	if doc, ok := s.cache.Get(username); ok {
		return doc, nil
	}
	s.logger.Debug("cache miss", "username", username)

	data, err := s.blobs.Get(ctx, username)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrPersistence, err)
	}

	doc, err := document.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if doc.Username() != username {
		return nil, fmt.Errorf("%w: record for %q names %q", document.ErrSerialization, username, doc.Username())
	}

	s.cache.Set(username, doc)
	return doc, nil
}

// write checks the size limit, persists, then caches.
// Must be called with the username's lock held.
func (s *Store) write(ctx context.Context, doc *document.Document) error {
	username := doc.Username()

	data, err := document.Marshal(doc)
	if err != nil {
		s.logger.Debug("write rejected", "username", username, "error", err)
		return err
	}

	s.logger.Debug("write", "username", username, "version", doc.Version(), "size", len(data))

	if s.maxSize > 0 && len(data) > s.maxSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", document.ErrPayloadTooLarge, len(data), s.maxSize)
	}

	if err := s.blobs.Put(ctx, username, data); err != nil {
		s.logger.Error("persisting document failed", "username", username, "error", err)
		return fmt.Errorf("%w: %v", document.ErrPersistence, err)
	}

	s.cache.Set(username, doc.Clone())
	return nil
}
