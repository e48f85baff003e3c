package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/dreamware/graphvt/internal/wire"
)

// inboundMsg pairs a received envelope with the id of whoever sent
// it, mirroring what a real transport's Recv would hand back.
type inboundMsg struct {
	sender int
	env    wire.Envelope
}

// Bus is an in-process message bus: a registry of endpoint ids to
// inboxes, used to wire up a whole deployment (timestampers, shards,
// clients) within a single test or demo process without any sockets.
//
// Bus is the transport analogue of the teacher's in-memory
// coordinator-to-node wiring in test/integration: everything talks
// through one shared switchboard instead of real network addresses.
type Bus struct {
	mu        sync.Mutex
	endpoints map[int]chan inboundMsg
	inboxSize int
}

// NewBus creates an empty bus. inboxSize bounds how many undelivered
// messages an endpoint may accumulate before Send blocks; 256 is a
// sensible default for tests.
func NewBus(inboxSize int) *Bus {
	if inboxSize <= 0 {
		inboxSize = 256
	}
	return &Bus{endpoints: make(map[int]chan inboundMsg), inboxSize: inboxSize}
}

// Endpoint registers id on the bus and returns a Transport bound to
// it. Registering the same id twice replaces the previous inbox,
// which is useful for simulating a process restart in tests.
func (b *Bus) Endpoint(id int) *MemoryTransport {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan inboundMsg, b.inboxSize)
	b.endpoints[id] = ch
	return &MemoryTransport{bus: b, id: id, inbox: ch}
}

func (b *Bus) inboxFor(id int) (chan inboundMsg, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.endpoints[id]
	return ch, ok
}

// MemoryTransport is a Transport backed by a Bus. It never actually
// serializes through the wire codec — messages are handed across
// Go channels by value — but every payload that passes through it
// still flows as a wire.Envelope, so swapping in the TCP transport
// requires no changes at call sites.
type MemoryTransport struct {
	bus   *Bus
	inbox chan inboundMsg
	id    int
}

var _ Transport = (*MemoryTransport)(nil)

func (t *MemoryTransport) Send(ctx context.Context, dest int, env wire.Envelope) error {
	ch, ok := t.bus.inboxFor(dest)
	if !ok {
		return fmt.Errorf("transport: no such endpoint %d", dest)
	}
	select {
	case ch <- inboundMsg{sender: t.id, env: env}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MemoryTransport) Recv(ctx context.Context) (int, wire.Envelope, error) {
	select {
	case m := <-t.inbox:
		return m.sender, m.env, nil
	case <-ctx.Done():
		return 0, wire.Envelope{}, ErrTimeout
	}
}

func (t *MemoryTransport) Close() error {
	t.bus.mu.Lock()
	defer t.bus.mu.Unlock()
	delete(t.bus.endpoints, t.id)
	return nil
}
