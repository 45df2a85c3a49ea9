// Package sessions tracks live call sessions so the server can drain them on
// shutdown.
package sessions

import (
	"context"
	"sync"
)

// Tracker counts active call sessions and can cancel them all.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedCall
	wg       sync.WaitGroup
}

type trackedCall struct {
	cancel func()
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*trackedCall)}
}

// Register tracks one call session under id. The returned unregister func is
// idempotent and must be called when the call ends. Registering the same id
// again cancels and replaces the old entry.
func (t *Tracker) Register(id string, cancel func()) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedCall{cancel: cancel}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedCall)
	}
	old := t.sessions[id]
	t.sessions[id] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(id, old)
	}

	return func() { t.unregister(id, entry) }
}

func (t *Tracker) unregister(id string, entry *trackedCall) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[id] == entry {
			delete(t.sessions, id)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// Count reports how many calls are live.
func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// CancelAll initiates teardown on every live call.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.cancel == nil {
			continue
		}
		cancels = append(cancels, entry.cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until all registered calls end, or ctx expires. Returns true
// when everything drained in time.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
