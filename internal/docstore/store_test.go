// ABOUTME: Tests for the document store covering caching, write ordering and concurrency
// ABOUTME: Uses an in-memory blob backend with failure injection

package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/docwatch/internal/blob"
	"github.com/2389/docwatch/internal/document"
)

var errDiskFull = errors.New("disk full")

type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	gets    int
	failPut bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memBlobs) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errDiskFull
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memBlobs) Close() error { return nil }

func (m *memBlobs) setFailPut(v bool) {
	m.mu.Lock()
	m.failPut = v
	m.mu.Unlock()
}

func (m *memBlobs) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, blobs blob.Store, maxSize int) *Store {
	t.Helper()
	s := New(blobs, Options{CacheSize: 100, CacheMaxAge: time.Hour, MaxDocumentSize: maxSize}, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// setUserData returns a mutation that replaces user data if the base version matches.
func setUserData(base int64, userdata string) MutateFunc {
	return func(current *document.Document) (*document.Document, error) {
		if err := document.CheckVersion(current, &base); err != nil {
			return nil, err
		}
		cs := &document.ChangeSet{UserData: json.RawMessage(userdata)}
		return document.Apply(current.Username(), current, cs, false, created), nil
	}
}

func TestRead_NotFound(t *testing.T) {
	s := newTestStore(t, newMemBlobs(), 0)

	_, err := s.Read(context.Background(), "nobody")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBlobs(), 0)

	require.NoError(t, s.Create(ctx, document.New("alice", created)))

	doc, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), doc.Version())
	assert.JSONEq(t, `{}`, string(doc.UserData))

	err = s.Create(ctx, document.New("alice", created))
	assert.ErrorIs(t, err, document.ErrExists)
}

func TestWrite_RoundTripBypassingCache(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	s := newTestStore(t, blobs, 0)

	doc := document.New("alice", created)
	doc.Metadata.Version = 4
	doc.Metadata.Collaborators = []string{"bob"}
	doc.UserData = json.RawMessage(`{"x":[1,2,{"y":null}]}`)
	require.NoError(t, s.Write(ctx, doc))

	s.Evict("alice")
	got, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
	assert.Equal(t, 1, blobs.getCount())
}

func TestRead_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	s := newTestStore(t, blobs, 0)
	require.NoError(t, s.Write(ctx, document.New("alice", created)))

	for range 3 {
		_, err := s.Read(ctx, "alice")
		require.NoError(t, err)
	}
	assert.Equal(t, 0, blobs.getCount())
}

func TestRead_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBlobs(), 0)
	require.NoError(t, s.Write(ctx, document.New("alice", created)))

	doc, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	doc.Metadata.Version = 99
	doc.Metadata.Collaborators = append(doc.Metadata.Collaborators, "mallory")

	again, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Version())
	assert.Empty(t, again.Metadata.Collaborators)
}

func TestRead_UsernameMismatch(t *testing.T) {
	blobs := newMemBlobs()
	data, err := document.Marshal(document.New("bob", created))
	require.NoError(t, err)
	blobs.data["alice"] = data
	s := newTestStore(t, blobs, 0)

	_, err = s.Read(context.Background(), "alice")
	assert.ErrorIs(t, err, document.ErrSerialization)
}

func TestRead_CorruptRecord(t *testing.T) {
	blobs := newMemBlobs()
	blobs.data["alice"] = []byte(`{not json`)
	s := newTestStore(t, blobs, 0)

	_, err := s.Read(context.Background(), "alice")
	assert.ErrorIs(t, err, document.ErrSerialization)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBlobs(), 0)
	require.NoError(t, s.Create(ctx, document.New("alice", created)))

	var committed *document.Document
	doc, err := s.Update(ctx, "alice", setUserData(0, `{"x":1}`), func(d *document.Document) {
		committed = d
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version())
	require.NotNil(t, committed)
	assert.Equal(t, int64(1), committed.Version())

	got, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(got.UserData))
}

func TestUpdate_NotFound(t *testing.T) {
	s := newTestStore(t, newMemBlobs(), 0)

	_, err := s.Update(context.Background(), "alice", setUserData(0, `{}`), nil)
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestUpdate_MutateErrorLeavesDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBlobs(), 0)
	require.NoError(t, s.Create(ctx, document.New("alice", created)))

	called := false
	_, err := s.Update(ctx, "alice", setUserData(7, `{"x":1}`), func(*document.Document) { called = true })
	assert.ErrorIs(t, err, document.ErrVersionConflict)
	assert.False(t, called)

	got, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version())
}

func TestUpdate_MutationCannotTouchCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBlobs(), 0)
	require.NoError(t, s.Create(ctx, document.New("alice", created)))

	_, err := s.Update(ctx, "alice", func(current *document.Document) (*document.Document, error) {
		current.Metadata.Version = 50
		return nil, errors.New("changed my mind")
	}, nil)
	require.Error(t, err)

	got, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version())
}

func TestUpdate_UsernameCannotChange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBlobs(), 0)
	require.NoError(t, s.Create(ctx, document.New("alice", created)))

	_, err := s.Update(ctx, "alice", func(current *document.Document) (*document.Document, error) {
		current.Metadata.Username = "bob"
		return current, nil
	}, nil)
	assert.ErrorIs(t, err, document.ErrSerialization)
}

func TestUpdate_PayloadTooLarge(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	s := newTestStore(t, blobs, 256)
	require.NoError(t, s.Create(ctx, document.New("alice", created)))

	big := `{"blob":"` + stringOf('a', 1024) + `"}`
	_, err := s.Update(ctx, "alice", setUserData(0, big), nil)
	assert.ErrorIs(t, err, document.ErrPayloadTooLarge)

	got, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version())

	s.Evict("alice")
	got, err = s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version())
}

func TestWrite_PayloadTooLarge(t *testing.T) {
	s := newTestStore(t, newMemBlobs(), 64)

	doc := document.New("alice", created)
	doc.UserData = json.RawMessage(`"` + stringOf('z', 100) + `"`)
	err := s.Write(context.Background(), doc)
	assert.ErrorIs(t, err, document.ErrPayloadTooLarge)

	_, err = s.Read(context.Background(), "alice")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestUpdate_PersistenceFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	s := newTestStore(t, blobs, 0)
	require.NoError(t, s.Create(ctx, document.New("alice", created)))

	blobs.setFailPut(true)
	_, err := s.Update(ctx, "alice", setUserData(0, `{"x":1}`), nil)
	assert.ErrorIs(t, err, document.ErrPersistence)
	assert.NotContains(t, document.IssueMessage(err), "disk full")

	got, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version())
	assert.JSONEq(t, `{}`, string(got.UserData))

	blobs.setFailPut(false)
	got, err = s.Update(ctx, "alice", setUserData(0, `{"x":2}`), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version())
}

func TestUpdate_ConcurrentSameVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBlobs(), 0)
	require.NoError(t, s.Create(ctx, document.New("alice", created)))

	const writers = 20
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "alice", setUserData(0, `{"w":true}`), nil)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, document.ErrVersionConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())

	got, err := s.Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version())
}

func TestUpdate_CommitsObservedInOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemBlobs(), 0)
	require.NoError(t, s.Create(ctx, document.New("alice", created)))

	bump := func(current *document.Document) (*document.Document, error) {
		return document.Apply("alice", current, &document.ChangeSet{}, false, created), nil
	}

	var mu sync.Mutex
	var seen []int64
	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "alice", bump, func(d *document.Document) {
				mu.Lock()
				seen = append(seen, d.Version())
				mu.Unlock()
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, seen, 25)
	for i, v := range seen {
		assert.Equal(t, int64(i+1), v)
	}
	assert.Zero(t, s.locks.size())
}

func TestRead_ConcurrentMissesShareLoad(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	data, err := document.Marshal(document.New("alice", created))
	require.NoError(t, err)
	blobs.data["alice"] = data
	s := newTestStore(t, blobs, 0)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := s.Read(ctx, "alice")
			if assert.NoError(t, err) {
				assert.Equal(t, "alice", doc.Username())
			}
		}()
	}
	wg.Wait()

	// Late arrivals may miss the shared flight but then hit the cache.
	assert.Equal(t, 1, blobs.getCount())
}

// gatedBlobs holds every Get until release is closed, then fails it if the
// caller's context is done.
type gatedBlobs struct {
	*memBlobs
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.memBlobs.Get(ctx, key)
}

func TestRead_SharedLoadIgnoresCallerCancel(t *testing.T) {
	blobs := &gatedBlobs{
		memBlobs: newMemBlobs(),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	data, err := document.Marshal(document.New("alice", created))
	require.NoError(t, err)
	blobs.data["alice"] = data
	s := newTestStore(t, blobs, 0)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		doc *document.Document
		err error
	}
	first := make(chan result, 1)
	go func() {
		doc, err := s.Read(ctx, "alice")
		first <- result{doc, err}
	}()

	<-blobs.started
	second := make(chan result, 1)
	go func() {
		doc, err := s.Read(context.Background(), "alice")
		second <- result{doc, err}
	}()

	cancel()
	close(blobs.release)

	for _, ch := range []chan result{first, second} {
		res := <-ch
		require.NoError(t, res.err)
		assert.Equal(t, "alice", res.doc.Username())
	}
}

func TestStore_WithFileBackend(t *testing.T) {
	ctx := context.Background()
	files, err := blob.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	s := newTestStore(t, files, 0)

	require.NoError(t, s.Create(ctx, document.New("silver-wolves", created)))
	_, err = s.Update(ctx, "silver-wolves", setUserData(0, `{"tracks":["one"]}`), nil)
	require.NoError(t, err)

	s.Evict("silver-wolves")
	got, err := s.Read(ctx, "silver-wolves")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version())
	assert.JSONEq(t, `{"tracks":["one"]}`, string(got.UserData))
}

func TestKeyLocks(t *testing.T) {
	locks := newKeyLocks()

	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	assert.Equal(t, 2, locks.size())

	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the key")
	}

	unlockB()
	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 10*time.Millisecond)
}

func stringOf(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
