package transport

import (
	"sync"

	"github.com/gofrs/uuid"
	"golang.org/x/exp/maps"
)

// SessionWatcher broadcasts the session-invalidated signal emitted when a
// credential refresh fails terminally.
//
// The signal carries no payload beyond "session ended". Emission is
// synchronous and happens at most once per failed refresh operation,
// regardless of how many requests were queued against it.
// It is never emitted on a successful refresh.
type SessionWatcher struct {
	listeners map[uuid.UUID]func()

	initOnce sync.Once
	mu       sync.RWMutex
}

func (w *SessionWatcher) init() {
	w.initOnce.Do(func() {
		if w.listeners == nil {
			w.listeners = make(map[uuid.UUID]func())
		}
	})
}

// Subscribe registers a listener and returns a function that removes it.
func (w *SessionWatcher) Subscribe(listener func()) func() {
	w.init()
	w.mu.Lock()
	defer w.mu.Unlock()

	id := uuid.Must(uuid.NewV4())
	w.listeners[id] = listener

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()

		delete(w.listeners, id)
	}
}

// Invalidate notifies every subscribed listener that the session ended.
//
// Listeners run synchronously on the calling goroutine.
func (w *SessionWatcher) Invalidate() {
	w.init()
	w.mu.RLock()
	listeners := maps.Values(w.listeners)
	w.mu.RUnlock()

	for _, listener := range listeners {
		listener()
	}
}
