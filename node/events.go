package node

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies the kind of event published on the node bus.
type EventType string

const (
	// EventChainHead is published by the block watchers each time a
	// watched network advances to a new head. Data is an
	// analytics.BlockEvent.
	EventChainHead EventType = "chain.head"

	// EventGasQuote is published after a successful gas price quote.
	// Data is a GasQuoteEvent.
	EventGasQuote EventType = "chain.gasQuote"
)

// GasQuoteEvent carries the standard-tier gas price observed for a network.
type GasQuoteEvent struct {
	Network     string
	StandardWei *big.Int
}

// Event is a message published on the event bus.
type Event struct {
	Type      EventType
	Data      interface{}
	Timestamp time.Time
}

// Subscription receives events for one or more event types from the bus.
type Subscription struct {
	id     uint64
	types  map[EventType]struct{}
	ch     chan Event
	bus    *EventBus
	closed atomic.Bool
}

// Chan returns a read-only channel delivering events matching the
// subscription's types.
func (s *Subscription) Chan() <-chan Event {
	return s.ch
}

// Unsubscribe removes this subscription from the bus and closes the
// underlying channel. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.Unsubscribe(s)
	}
}

// EventBus decouples the watcher goroutines and tool handlers that observe
// chain state from the consumers that record it. All methods are safe for
// concurrent use.
type EventBus struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool
}

// NewEventBus creates an EventBus. bufferSize controls the channel buffer
// for each subscription; 0 means unbuffered.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &EventBus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe creates a subscription receiving events matching any of the
// given types.
func (eb *EventBus) Subscribe(types ...EventType) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		// Hand back an already-closed subscription.
		sub := &Subscription{
			ch:    make(chan Event),
			types: make(map[EventType]struct{}),
		}
		sub.closed.Store(true)
		close(sub.ch)
		return sub
	}

	eb.nextID++
	typeSet := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}

	sub := &Subscription{
		id:    eb.nextID,
		types: typeSet,
		ch:    make(chan Event, eb.bufferSize),
		bus:   eb,
	}
	eb.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the given subscription from the bus and closes its
// channel. Safe to call multiple times or with nil.
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	// The atomic flag guarantees the channel closes exactly once even
	// under concurrent unsubscribes.
	if !sub.closed.CompareAndSwap(false, true) {
		return
	}

	eb.mu.Lock()
	delete(eb.subs, sub.id)
	eb.mu.Unlock()

	close(sub.ch)
}

// Publish delivers an event to every matching subscriber, blocking while
// any subscriber's channel is full.
func (eb *EventBus) Publish(eventType EventType, data interface{}) {
	event := Event{Type: eventType, Data: data, Timestamp: time.Now()}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	for _, sub := range eb.subs {
		if sub.closed.Load() {
			continue
		}
		if _, ok := sub.types[eventType]; ok {
			sub.ch <- event
		}
	}
}

// PublishAsync delivers an event to every matching subscriber without
// blocking: saturated subscribers miss the event. The watchers publish
// heads this way so a slow consumer can never stall block polling.
func (eb *EventBus) PublishAsync(eventType EventType, data interface{}) {
	event := Event{Type: eventType, Data: data, Timestamp: time.Now()}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	for _, sub := range eb.subs {
		if sub.closed.Load() {
			continue
		}
		if _, ok := sub.types[eventType]; ok {
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions for the given
// event type.
func (eb *EventBus) SubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	count := 0
	for _, sub := range eb.subs {
		if sub.closed.Load() {
			continue
		}
		if _, ok := sub.types[eventType]; ok {
			count++
		}
	}
	return count
}

// Close shuts down the bus. All subscription channels are closed and
// further publishes are dropped.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.closed = true

	toClose := make([]*Subscription, 0, len(eb.subs))
	for _, sub := range eb.subs {
		toClose = append(toClose, sub)
	}
	eb.subs = make(map[uint64]*Subscription)
	eb.mu.Unlock()

	for _, sub := range toClose {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
}
