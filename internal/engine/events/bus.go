package events

import "sync"

const defaultBufferSize = 64

// Bus fans events out to subscribers over bounded channels. Publishing never
// blocks: a subscriber that falls behind loses events rather than stalling a
// transfer worker. Durable records (transfer log) do not go through the bus.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	buffer int
}

// NewBus creates an event bus with the default per-subscriber buffer.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: defaultBufferSize,
	}
}

// NewBusWithBuffer creates a bus with a custom per-subscriber buffer size.
func NewBusWithBuffer(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: size,
	}
}

// Subscribe registers a listener. The returned cancel function must be called
// to release the subscription; the channel is closed on cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking. Events to
// full subscriber buffers are dropped.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber, drop rather than stall the publisher.
		}
	}
}
