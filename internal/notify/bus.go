// ABOUTME: In-memory fan-out bus for store change notifications
// ABOUTME: Publishes payload-free events to all subscribers of an instance identity

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventStoreChanged is emitted after a successful flush.
const EventStoreChanged = "store.changed"

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 16

// Event is a change notification.
type Event struct {
	Name     string
	Identity string
	At       time.Time
}

// Bus provides in-memory pub/sub keyed by instance identity.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // identity -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "notify"),
	}
}

// Subscribe registers for events about identity. The subscription is
// removed and its channel closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, identity string) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[identity]; !ok {
		b.subscribers[identity] = make(map[string]chan Event)
	}
	b.subscribers[identity][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "instance", identity, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(identity, subID)
	}()

	return ch, subID
}

// Publish delivers ev to every subscriber of ev.Identity without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers[ev.Identity] {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"instance", ev.Identity,
				"sub_id", subID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(identity, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[identity]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, identity)
	}

	b.logger.Debug("subscriber removed", "instance", identity, "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for identity, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, identity)
	}
	b.closed = true
}
