package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToSubscriber(t *testing.T) {
	b := NewBus()
	received := make(chan Event, 1)
	unsub := b.Subscribe(func(ev Event) { received <- ev })
	defer unsub()

	b.Emit(Event{Type: TaskComplete, Key: "build.api"})

	select {
	case ev := <-received:
		require.Equal(t, TaskComplete, ev.Type)
		require.Equal(t, "build.api", ev.Key)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	count := 0
	unsub := b.Subscribe(func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Emit(Event{Type: TaskPending})
	time.Sleep(20 * time.Millisecond)
	unsub()
	b.Emit(Event{Type: TaskPending})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}

func TestBus_PanickingSubscriberDoesNotAffectOthers(t *testing.T) {
	b := NewBus()
	b.Subscribe(func(ev Event) { panic("boom") })

	received := make(chan Event, 1)
	b.Subscribe(func(ev Event) { received <- ev })

	b.Emit(Event{Type: TaskError})

	select {
	case ev := <-received:
		require.Equal(t, TaskError, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("second subscriber never received its event")
	}
}

func TestBus_FullBufferDropsRatherThanBlocks(t *testing.T) {
	b := NewBus()
	block := make(chan struct{})
	unsub := b.Subscribe(func(ev Event) { <-block })
	defer func() {
		close(block)
		unsub()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			b.Emit(Event{Type: TaskPending})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber buffer")
	}
}
