package orchestrator

import (
	"sync"

	"github.com/Kelll31/aptscan/internal/model"
)

// EventType classifies a scan-change notification.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event is one change notification. Scan is a deep clone; observers
// only ever read.
type Event struct {
	Type EventType   `json:"type"`
	Scan *model.Scan `json:"scan"`
}

// eventBus fans change events out to subscribers. Sends never block;
// a subscriber that stops draining loses events, not the orchestrator.
type eventBus struct {
	mu      sync.Mutex
	nextID  int
	watches map[int]chan Event
}

func newEventBus() *eventBus {
	return &eventBus{watches: make(map[int]chan Event)}
}

func (b *eventBus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.watches[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.watches[id]; ok {
			delete(b.watches, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *eventBus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.watches {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *eventBus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.watches {
		delete(b.watches, id)
		close(ch)
	}
}
