package timestamper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/graphvt/internal/config"
	"github.com/dreamware/graphvt/internal/mapper"
	"github.com/dreamware/graphvt/internal/transport"
	"github.com/dreamware/graphvt/internal/wire"
)

func newTestService(t *testing.T, nShards int) (*Service, *transport.Bus, *mapper.HashMapper) {
	t.Helper()
	cfg := config.Default()
	cfg.NShards = nShards
	bus := transport.NewBus(32)
	vtTr := bus.Endpoint(0)
	m := mapper.NewHashMapper(nShards)
	s := New(cfg, 0, vtTr, m)
	return s, bus, m
}

func TestUnpackTx_ResolvesEveryWriteToAShard(t *testing.T) {
	s, _, _ := newTestService(t, 4)
	writes := []wire.Update{
		{Kind: wire.UpdateNodeCreate, Operands: []uint64{10}},
		{Kind: wire.UpdateEdgeCreate, Operands: []uint64{20, 30}},
	}
	tx, err := s.unpackTx(7, writes)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), tx.ClientID)
	require.Len(t, tx.Writes, 2)
	assert.Equal(t, []uint64{10}, tx.Writes[0].Operands)
}

func TestUnpackTx_RejectsForgottenHandle(t *testing.T) {
	s, _, m := newTestService(t, 4)
	m.Forget(99)
	_, err := s.unpackTx(7, []wire.Update{{Operands: []uint64{99}}})
	assert.Error(t, err)
}

func TestUnpackTx_RejectsWriteWithNoOperands(t *testing.T) {
	s, _, _ := newTestService(t, 4)
	_, err := s.unpackTx(7, []wire.Update{{Operands: nil}})
	assert.Error(t, err)
}

func TestBeginTransaction_SendsOneTxInitPerTouchedShard(t *testing.T) {
	s, bus, _ := newTestService(t, 2)
	shard0 := bus.Endpoint(s.addr.ShardEndpoint(0))
	shard1 := bus.Endpoint(s.addr.ShardEndpoint(1))

	tx := PendingTx{
		ClientID: 1,
		Writes: []PendingUpdate{
			{Kind: wire.UpdateNodeCreate, Loc1: 0, Operands: []uint64{1}},
			{Kind: wire.UpdateNodeCreate, Loc1: 1, Operands: []uint64{2}},
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.beginTransaction(ctx, tx)

	_, env0, err := shard0.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgTxInit, env0.Type)

	_, env1, err := shard1.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgTxInit, env1.Type)
}

func TestBeginTransaction_SingleShardTxSendsExactlyOneTxInit(t *testing.T) {
	s, bus, _ := newTestService(t, 2)
	shard0 := bus.Endpoint(s.addr.ShardEndpoint(0))

	tx := PendingTx{
		ClientID: 1,
		Writes: []PendingUpdate{
			{Kind: wire.UpdateNodeCreate, Loc1: 0, Operands: []uint64{1}},
			{Kind: wire.UpdateNodeCreate, Loc1: 0, Operands: []uint64{2}},
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.beginTransaction(ctx, tx)

	_, env, err := shard0.Recv(ctx)
	require.NoError(t, err)
	msg, err := wire.UnmarshalTxInit(env.Payload)
	require.NoError(t, err)
	assert.Len(t, msg.Writes, 2)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	_, _, err = shard0.Recv(ctx2)
	assert.ErrorIs(t, err, transport.ErrTimeout)
}

func TestEndTransaction_RepliesOnceAllShardsDone(t *testing.T) {
	s, bus, _ := newTestService(t, 2)
	client := bus.Endpoint(clientEndpoint(5))

	s.principalMu.Lock()
	txID := s.ids.Next()
	s.txReplies[txID] = &txReplyEntry{clientID: 5, remaining: 2}
	s.principalMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.endTransaction(ctx, uint64(txID))
	ctxShort, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, _, err := client.Recv(ctxShort)
	assert.ErrorIs(t, err, transport.ErrTimeout, "client must not be notified until every shard acks")

	s.endTransaction(ctx, uint64(txID))
	_, env, err := client.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgClientTxDone, env.Type)

	s.principalMu.Lock()
	_, stillTracked := s.txReplies[txID]
	s.principalMu.Unlock()
	assert.False(t, stillTracked)
}

func TestEndTransaction_UnknownTxIDIsIgnored(t *testing.T) {
	s, _, _ := newTestService(t, 1)
	ctx := context.Background()
	s.endTransaction(ctx, 99999) // must not panic
}
