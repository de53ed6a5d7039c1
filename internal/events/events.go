// Package events fans cache notifications out to subscribed listeners.
package events

import "sync"

type Kind string

const (
	Hit           Kind = "hit"
	Miss          Kind = "miss"
	Set           Kind = "set"
	Evict         Kind = "evict"
	Expire        Kind = "expire"
	Delete        Kind = "delete"
	ContextChange Kind = "contextChange"
)

type Event struct {
	Kind Kind
	// Key is empty for events without a subject key (contextChange).
	Key string
	// Tier names the tier that produced the event, when one did.
	Tier string
}

// Listener receives events synchronously; it must be lightweight.
type Listener func(Event)

type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[int]Listener)}
}

func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.listeners {
		l(ev)
	}
}
