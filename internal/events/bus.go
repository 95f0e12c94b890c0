package events

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-civdef-map/internal/models"
)

const subscriberBuffer = 100

// Publisher is what producers depend on.
type Publisher interface {
	Publish(e models.Event)
}

// Bus fans events out to subscribers. Slow subscribers miss events rather
// than block the publisher.
type Bus struct {
	subscribers map[uint64]chan models.Event
	nextID      atomic.Uint64
	mu          sync.RWMutex
	closed      bool
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[uint64]chan models.Event),
	}
}

func (b *Bus) Subscribe() (uint64, <-chan models.Event) {
	id := b.nextID.Add(1)
	ch := make(chan models.Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subscribers[id] = ch
	}
	b.mu.Unlock()

	return id, ch
}

func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(e models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels; later subscriptions get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(models.Event) {}
