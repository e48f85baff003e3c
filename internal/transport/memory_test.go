package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/graphvt/internal/wire"
)

func TestMemoryTransport_SendRecvRoundTrip(t *testing.T) {
	bus := NewBus(8)
	a := bus.Endpoint(0)
	b := bus.Endpoint(1)
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	env := wire.Envelope{Type: wire.MsgTxDone, Payload: []byte("ok")}
	require.NoError(t, a.Send(ctx, 1, env))

	sender, got, err := b.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sender)
	assert.Equal(t, env.Payload, got.Payload)
}

func TestMemoryTransport_RecvTimesOut(t *testing.T) {
	bus := NewBus(8)
	a := bus.Endpoint(0)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := a.Recv(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMemoryTransport_SendToUnknownEndpointErrors(t *testing.T) {
	bus := NewBus(8)
	a := bus.Endpoint(0)
	defer a.Close()

	ctx := context.Background()
	err := a.Send(ctx, 99, wire.Envelope{Type: wire.MsgTxDone})
	assert.Error(t, err)
}

func TestAddressing_Ranges(t *testing.T) {
	addr := Addressing{NVT: 3, NShards: 4, ShardIDIncr: 100}
	assert.True(t, addr.IsTimestamper(2))
	assert.False(t, addr.IsTimestamper(3))
	assert.True(t, addr.IsShard(100))
	assert.True(t, addr.IsShard(103))
	assert.False(t, addr.IsShard(104))
	assert.Equal(t, 0, addr.ShardIndex(100))
	assert.Equal(t, 100, addr.ShardEndpoint(0))
}
