package timestamper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/graphvt/internal/transport"
	"github.com/dreamware/graphvt/internal/wire"
)

func TestStartNodeProg_GlobalArgMustBeSole(t *testing.T) {
	s, _, _ := newTestService(t, 2)
	ctx := context.Background()
	err := s.startNodeProg(ctx, 1, "count", []uint64{wire.GlobalArg, 5})
	assert.Error(t, err)
}

func TestStartNodeProg_GlobalArgBroadcastsToEveryShard(t *testing.T) {
	s, bus, _ := newTestService(t, 3)
	shards := make([]*transport.MemoryTransport, 3)
	for i := range shards {
		shards[i] = bus.Endpoint(s.addr.ShardEndpoint(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.startNodeProg(ctx, 1, "degree_sum", []uint64{wire.GlobalArg}))

	for i, sh := range shards {
		_, env, err := sh.Recv(ctx)
		require.NoError(t, err, "shard %d should receive NODE_PROG", i)
		assert.Equal(t, wire.MsgNodeProg, env.Type)
	}
}

func TestStartNodeProg_TargetedArgsOnlyReachResolvedShards(t *testing.T) {
	s, bus, m := newTestService(t, 4)
	shard, err := m.ResolveShard(1)
	require.NoError(t, err)
	tr := bus.Endpoint(s.addr.ShardEndpoint(shard))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.startNodeProg(ctx, 1, "neighbors", []uint64{1}))

	_, env, err := tr.Recv(ctx)
	require.NoError(t, err)
	msg, err := wire.UnmarshalNodeProg(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, msg.Args)
	assert.False(t, msg.Global)
}

func TestOnNodeProgReturn_ForwardsToClientAndAdvancesWatermark(t *testing.T) {
	s, bus, _ := newTestService(t, 1)
	client := bus.Endpoint(clientEndpoint(42))

	s.principalMu.Lock()
	reqID := s.ids.Next()
	s.outstandingNodeProgs[reqID] = 42
	s.outstandingReqIDs.Push(reqID)
	s.idToClock[reqID] = s.vclk.Copy()
	s.principalMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.onNodeProgReturn(ctx, "neighbors", uint64(reqID), []byte("result"))

	_, env, err := client.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgNodeProgReturn, env.Type)
	msg, err := wire.UnmarshalNodeProgReturn(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("result"), msg.Payload)

	maxDoneID, _ := s.Snapshot()
	assert.Equal(t, reqID, maxDoneID)
}

func TestOnNodeProgReturn_SecondReturnForSameReqIDIsDropped(t *testing.T) {
	s, bus, _ := newTestService(t, 1)
	client := bus.Endpoint(clientEndpoint(42))

	s.principalMu.Lock()
	reqID := s.ids.Next()
	s.outstandingNodeProgs[reqID] = 42
	s.outstandingReqIDs.Push(reqID)
	s.idToClock[reqID] = s.vclk.Copy()
	s.principalMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.onNodeProgReturn(ctx, "neighbors", uint64(reqID), []byte("first"))
	_, _, err := client.Recv(ctx)
	require.NoError(t, err)

	s.onNodeProgReturn(ctx, "neighbors", uint64(reqID), []byte("second"))
	ctxShort, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, _, err = client.Recv(ctxShort)
	assert.Error(t, err, "a duplicate return must not be forwarded again")
}
