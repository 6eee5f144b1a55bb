// ABOUTME: Tests for the watch registry fan-out and cleanup behavior
// ABOUTME: Covers projection per subscriber, failure isolation and concurrent use

package watch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/docwatch/internal/document"
)

type change struct {
	target string
	view   *document.Document
}

type recorder struct {
	mu      sync.Mutex
	changes []change
	err     error
}

func (r *recorder) Notify(target string, view *document.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.changes = append(r.changes, change{target: target, view: view})
	return nil
}

func (r *recorder) received() []change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]change(nil), r.changes...)
}

func makeDoc(username, userdata string) *document.Document {
	d := document.New(username, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d.UserData = json.RawMessage(userdata)
	return d
}

func TestRegistry_NotifyProjectsPerSubscriber(t *testing.T) {
	r := NewRegistry(nil)
	all := &recorder{}
	onlyY := &recorder{}

	r.Add("alice", all, nil, "alice")
	r.Add("alice", onlyY, []string{"y"}, "bob")

	r.Notify(makeDoc("alice", `{"x":1,"y":{"z":2}}`))

	require.Len(t, all.received(), 1)
	assert.Equal(t, "alice", all.received()[0].target)
	assert.JSONEq(t, `{"x":1,"y":{"z":2}}`, string(all.received()[0].view.UserData))

	require.Len(t, onlyY.received(), 1)
	assert.JSONEq(t, `{"y":{"z":2}}`, string(onlyY.received()[0].view.UserData))
}

func TestRegistry_OtherTargetsNotNotified(t *testing.T) {
	r := NewRegistry(nil)
	sub := &recorder{}
	r.Add("bob", sub, nil, "carol")

	r.Notify(makeDoc("alice", `{}`))

	assert.Empty(t, sub.received())
}

func TestRegistry_RewatchAddsEntry(t *testing.T) {
	r := NewRegistry(nil)
	sub := &recorder{}

	r.Add("alice", sub, []string{"x"}, "alice")
	r.Add("alice", sub, []string{"y"}, "alice")
	assert.Equal(t, 2, r.Count("alice"))

	r.Notify(makeDoc("alice", `{"x":1,"y":2}`))
	got := sub.received()
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"x":1}`, string(got[0].view.UserData))
	assert.JSONEq(t, `{"y":2}`, string(got[1].view.UserData))
}

func TestRegistry_RemoveDropsEmptyTarget(t *testing.T) {
	r := NewRegistry(nil)
	a, b := &recorder{}, &recorder{}

	r.Add("alice", a, nil, "alice")
	r.Add("alice", a, []string{"x"}, "alice")
	r.Add("alice", b, nil, "bob")

	r.Remove("alice", a)
	assert.Equal(t, 1, r.Count("alice"))

	r.Notify(makeDoc("alice", `{}`))
	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)

	r.Remove("alice", b)
	assert.Equal(t, 0, r.Targets())
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	r.Remove("nobody", &recorder{})
	assert.Equal(t, 0, r.Targets())
}

func TestRegistry_RemoveAll(t *testing.T) {
	r := NewRegistry(nil)
	sub, other := &recorder{}, &recorder{}

	r.Add("alice", sub, nil, "carol")
	r.Add("bob", sub, nil, "carol")
	r.Add("bob", other, nil, "bob")

	r.RemoveAll(sub, []string{"alice", "bob"})

	assert.Equal(t, 0, r.Count("alice"))
	assert.Equal(t, 1, r.Count("bob"))
	assert.Equal(t, 1, r.Targets())
}

func TestRegistry_RemoveTarget(t *testing.T) {
	r := NewRegistry(nil)
	r.Add("alice", &recorder{}, nil, "alice")
	r.Add("alice", &recorder{}, nil, "bob")

	r.RemoveTarget("alice")
	assert.Equal(t, 0, r.Targets())
}

func TestRegistry_FailedDeliveryDoesNotStopOthers(t *testing.T) {
	r := NewRegistry(nil)
	broken := &recorder{err: errors.New("connection closed")}
	healthy := &recorder{}

	r.Add("alice", broken, nil, "bob")
	r.Add("alice", healthy, nil, "carol")

	r.Notify(makeDoc("alice", `{"x":1}`))

	assert.Len(t, healthy.received(), 1)
}

// removingSubscriber unwatches itself from inside Notify.
type removingSubscriber struct {
	r     *Registry
	calls int
}

func (s *removingSubscriber) Notify(target string, _ *document.Document) error {
	s.calls++
	s.r.Remove(target, s)
	return nil
}

func TestRegistry_SubscriberMayRemoveDuringNotify(t *testing.T) {
	r := NewRegistry(nil)
	self := &removingSubscriber{r: r}
	after := &recorder{}

	r.Add("alice", self, nil, "alice")
	r.Add("alice", after, nil, "bob")

	r.Notify(makeDoc("alice", `{}`))
	r.Notify(makeDoc("alice", `{}`))

	assert.Equal(t, 1, self.calls)
	assert.Len(t, after.received(), 2)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(nil)
	doc := makeDoc("alice", `{"x":1}`)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := &recorder{}
			for range 50 {
				r.Add("alice", sub, []string{"x"}, "w")
				r.Notify(doc)
				r.Remove("alice", sub)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Targets())
}
