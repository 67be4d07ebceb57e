package raknet

import (
	"slices"
	"sync"
	"time"
)

// ConnectionEvent is emitted by a Connection. It is one of ConnectedEvent, DisconnectedEvent,
// MessageEvent or LatencyEvent.
type ConnectionEvent interface {
	connectionEvent()
}

// ConnectedEvent is emitted once the peer completed the online handshake.
type ConnectedEvent struct{}

// DisconnectedEvent is emitted exactly once when the connection is closed.
type DisconnectedEvent struct {
	Reason DisconnectReason
}

// MessageEvent carries a user message received from the peer. Payload excludes the ID and is
// owned by the receiver.
type MessageEvent struct {
	ID      uint8
	Payload []byte
}

// LatencyEvent is emitted whenever a connected pong updates the latency estimate.
type LatencyEvent struct {
	Latency time.Duration
}

func (ConnectedEvent) connectionEvent()    {}
func (DisconnectedEvent) connectionEvent() {}
func (MessageEvent) connectionEvent()      {}
func (LatencyEvent) connectionEvent()      {}

// ServerEvent is emitted by a Listener. It is one of StartedEvent, NewConnectionEvent or
// ShuttingDownEvent.
type ServerEvent interface {
	serverEvent()
}

// StartedEvent is emitted when the listener is started.
type StartedEvent struct{}

// NewConnectionEvent is emitted when a peer completed the offline handshake and a connection
// was registered for its address.
type NewConnectionEvent struct {
	Conn *Connection
}

// ShuttingDownEvent is emitted before the listener closes its connections.
type ShuttingDownEvent struct{}

func (StartedEvent) serverEvent()       {}
func (NewConnectionEvent) serverEvent() {}
func (ShuttingDownEvent) serverEvent()  {}

type subscriber[E any] struct {
	id uint64
	fn func(E)
}

// Bus delivers events to its subscribers in subscription order.
type Bus[E any] struct {
	mu          sync.Mutex
	next        uint64
	subscribers []subscriber[E]
}

// Subscribe registers fn and returns a function that unregisters it. Events published after the
// unsubscribe function returns are not delivered to fn.
func (b *Bus[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subscribers = append(b.subscribers, subscriber[E]{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, s := range b.subscribers {
			if s.id == id {
				b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every current subscriber with the event. A subscriber removed by an earlier one
// during the same Publish is skipped.
func (b *Bus[E]) Publish(e E) {
	b.mu.Lock()
	subscribers := b.subscribers
	b.mu.Unlock()

	for _, s := range subscribers {
		if b.subscribed(s.id) {
			s.fn(e)
		}
	}
}

func (b *Bus[E]) subscribed(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.ContainsFunc(b.subscribers, func(s subscriber[E]) bool {
		return s.id == id
	})
}

// dispatcher defers event delivery until the listener lock is released. Deliveries run in the
// order they were queued, and a delivery that queues more events is finished before those run.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
}

// Runs queued deliveries until the queue is empty. If another call is already draining, that
// call delivers the queued events instead.
func (d *dispatcher) drain() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true

	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]

		d.mu.Unlock()
		fn()
		d.mu.Lock()
	}

	d.running = false
	d.mu.Unlock()
}
