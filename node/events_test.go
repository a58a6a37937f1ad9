package node

import (
	"math/big"
	"sync"
	"testing"
	"time"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	sub := bus.Subscribe(EventChainHead)
	defer sub.Unsubscribe()

	bus.Publish(EventChainHead, "head-1")

	select {
	case ev := <-sub.Chan():
		if ev.Type != EventChainHead {
			t.Errorf("Type = %s, want %s", ev.Type, EventChainHead)
		}
		if ev.Data != "head-1" {
			t.Errorf("Data = %v, want head-1", ev.Data)
		}
		if ev.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventBusTypeFilter(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	heads := bus.Subscribe(EventChainHead)
	defer heads.Unsubscribe()

	bus.Publish(EventGasQuote, GasQuoteEvent{Network: "iota", StandardWei: big.NewInt(1)})
	bus.Publish(EventChainHead, "head")

	ev := <-heads.Chan()
	if ev.Type != EventChainHead {
		t.Errorf("received %s, want chain heads only", ev.Type)
	}
	select {
	case extra := <-heads.Chan():
		t.Errorf("unexpected second event %v", extra.Data)
	default:
	}
}

func TestEventBusPublishAsyncDropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	sub := bus.Subscribe(EventChainHead)
	defer sub.Unsubscribe()

	bus.PublishAsync(EventChainHead, 1)
	bus.PublishAsync(EventChainHead, 2) // buffer full, dropped

	if got := <-sub.Chan(); got.Data != 1 {
		t.Errorf("Data = %v, want the first event", got.Data)
	}
	select {
	case ev := <-sub.Chan():
		t.Errorf("dropped event delivered: %v", ev.Data)
	default:
	}
}

func TestEventBusUnsubscribeIdempotent(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	sub := bus.Subscribe(EventChainHead)
	sub.Unsubscribe()
	sub.Unsubscribe()

	if n := bus.SubscriberCount(EventChainHead); n != 0 {
		t.Errorf("SubscriberCount = %d, want 0", n)
	}
	// Publishing after unsubscribe must not reach the closed channel.
	bus.Publish(EventChainHead, "late")
}

func TestEventBusSubscriberCount(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	a := bus.Subscribe(EventChainHead)
	b := bus.Subscribe(EventChainHead, EventGasQuote)
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	if n := bus.SubscriberCount(EventChainHead); n != 2 {
		t.Errorf("head subscribers = %d, want 2", n)
	}
	if n := bus.SubscriberCount(EventGasQuote); n != 1 {
		t.Errorf("quote subscribers = %d, want 1", n)
	}
}

func TestEventBusClose(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe(EventChainHead)

	bus.Close()
	bus.Close()

	if _, open := <-sub.Chan(); open {
		t.Error("subscription channel still open after Close")
	}
	bus.Publish(EventChainHead, "after close") // dropped silently

	late := bus.Subscribe(EventChainHead)
	if _, open := <-late.Chan(); open {
		t.Error("subscription on a closed bus must arrive closed")
	}
}

func TestEventBusConcurrentPublish(t *testing.T) {
	bus := NewEventBus(256)
	defer bus.Close()

	sub := bus.Subscribe(EventChainHead)
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	const publishers, each = 8, 16
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				bus.Publish(EventChainHead, j)
			}
		}()
	}
	wg.Wait()

	got := 0
	for {
		select {
		case <-sub.Chan():
			got++
		default:
			if got != publishers*each {
				t.Errorf("received %d events, want %d", got, publishers*each)
			}
			return
		}
	}
}
