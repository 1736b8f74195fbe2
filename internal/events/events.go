// Package events carries capability-invalidation notices between the
// mutation path and every process holding cached capabilities.
package events

import (
	"context"
	"sync"
	"time"
)

// KindCapabilitiesChanged is published after a privileged mutation that may
// change a user's admin permissions.
const KindCapabilitiesChanged = "capabilities.changed"

// Event describes a change that invalidates cached capabilities for UserID.
type Event struct {
	Kind   string    `json:"kind"`
	UserID string    `json:"user_id"`
	Action string    `json:"action,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher emits invalidation events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Subscriber delivers events until ctx ends, then closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Bus is both ends of the invalidation channel.
type Bus interface {
	Publisher
	Subscriber
}

// LocalBus fans events out to in-process subscribers.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

var _ Bus = (*LocalBus)(nil)

// NewLocalBus returns an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber. The channel is closed when ctx ends.
func (b *LocalBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}

// Publish delivers evt to every subscriber, dropping it for slow ones.
func (b *LocalBus) Publish(_ context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
