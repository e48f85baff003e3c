package timestamper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/graphvt/internal/clockid"
	"github.com/dreamware/graphvt/internal/wire"
)

func TestDispatch_ClientTxInitBeginsATransaction(t *testing.T) {
	s, bus, _ := newTestService(t, 1)
	shard0 := bus.Endpoint(s.addr.ShardEndpoint(0))

	req := wire.ClientTxInit{
		ClientID: 1,
		Writes:   []wire.Update{{Kind: wire.UpdateNodeCreate, Operands: []uint64{1}}},
	}
	env := wire.Envelope{Type: wire.MsgClientTxInit, Payload: req.Marshal()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.dispatch(ctx, 0, env)

	_, got, err := shard0.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgTxInit, got.Type)
}

func TestDispatch_ClientTxInitWithUnresolvableHandleRepliesFail(t *testing.T) {
	s, bus, m := newTestService(t, 1)
	client := bus.Endpoint(clientEndpoint(9))
	m.Forget(1)

	req := wire.ClientTxInit{
		ClientID: 9,
		Writes:   []wire.Update{{Kind: wire.UpdateNodeCreate, Operands: []uint64{1}}},
	}
	env := wire.Envelope{Type: wire.MsgClientTxInit, Payload: req.Marshal()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.dispatch(ctx, 0, env)

	_, got, err := client.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgClientTxFail, got.Type)
}

func TestDispatch_VTClockUpdateRepliesAck(t *testing.T) {
	s, bus, _ := newTestService(t, 1)
	s.cfg.NVT = 2
	s.vclk = clockid.NewVectorClock(2, 0)
	peer := bus.Endpoint(1)

	msg := wire.VTClockUpdate{FromVT: 1, Value: 5}
	env := wire.Envelope{Type: wire.MsgVTClockUpdate, Payload: msg.Marshal()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.dispatch(ctx, 1, env)

	s.principalMu.Lock()
	assert.Equal(t, uint64(5), s.vclk.Clock[1])
	s.principalMu.Unlock()

	_, got, err := peer.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgVTClockUpdateAck, got.Type)
}

func TestDispatch_VTClockUpdateAckIncrementsCounter(t *testing.T) {
	s, _, _ := newTestService(t, 1)
	s.cfg.NVT = 3
	ack := wire.VTClockUpdateAck{FromVT: 1}
	env := wire.Envelope{Type: wire.MsgVTClockUpdateAck, Payload: ack.Marshal()}

	s.dispatch(context.Background(), 1, env)
	s.periodicMu.Lock()
	assert.Equal(t, 1, s.clockUpdateAcks)
	s.periodicMu.Unlock()
}

func TestDispatch_VTClockUpdateAckPastNVTPanics(t *testing.T) {
	s, _, _ := newTestService(t, 1)
	s.cfg.NVT = 1
	s.periodicMu.Lock()
	s.clockUpdateAcks = 1
	s.periodicMu.Unlock()

	ack := wire.VTClockUpdateAck{FromVT: 0}
	env := wire.Envelope{Type: wire.MsgVTClockUpdateAck, Payload: ack.Marshal()}
	assert.Panics(t, func() { s.dispatch(context.Background(), 0, env) })
}

func TestDispatch_VTNopAckUpdatesShardNodeCountAndToNop(t *testing.T) {
	s, _, _ := newTestService(t, 2)
	ack := wire.VTNopAck{ShardID: 1, NodeCount: 42}
	env := wire.Envelope{Type: wire.MsgVTNopAck, Payload: ack.Marshal()}

	s.dispatch(context.Background(), s.addr.ShardEndpoint(1), env)

	s.periodicMu.Lock()
	assert.Equal(t, uint64(42), s.shardNodeCount[1])
	assert.True(t, s.toNop.IsSet(1))
	s.periodicMu.Unlock()
}

func TestDispatch_TxDoneRoutesThroughCore(t *testing.T) {
	s, bus, _ := newTestService(t, 1)
	client := bus.Endpoint(clientEndpoint(3))

	s.principalMu.Lock()
	txID := s.ids.Next()
	s.txReplies[txID] = &txReplyEntry{clientID: 3, remaining: 1}
	s.principalMu.Unlock()

	done := wire.TxDone{TxID: uint64(txID)}
	env := wire.Envelope{Type: wire.MsgTxDone, Payload: done.Marshal()}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.dispatch(ctx, s.addr.ShardEndpoint(0), env)

	_, got, err := client.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgClientTxDone, got.Type)
}

func TestDispatch_LoadedGraphTracksEveryShard(t *testing.T) {
	s, _, _ := newTestService(t, 2)

	first := wire.LoadedGraph{ShardID: 0, LoadedAt: 10}
	env := wire.Envelope{Type: wire.MsgLoadedGraph, Payload: first.Marshal()}
	s.dispatch(context.Background(), s.addr.ShardEndpoint(0), env)

	s.principalMu.Lock()
	assert.False(t, s.loadedShards.All())
	s.principalMu.Unlock()

	second := wire.LoadedGraph{ShardID: 1, LoadedAt: 20}
	env2 := wire.Envelope{Type: wire.MsgLoadedGraph, Payload: second.Marshal()}
	s.dispatch(context.Background(), s.addr.ShardEndpoint(1), env2)

	s.principalMu.Lock()
	assert.True(t, s.loadedShards.All())
	assert.Equal(t, int64(20), s.maxLoadedAt)
	s.principalMu.Unlock()
}

func TestDispatch_MigrationMessagesRelayToCoordinator(t *testing.T) {
	s, bus, _ := newTestService(t, 1)
	s.cfg.StartMigrID = 500
	coordinator := bus.Endpoint(500)

	relay := wire.MigrationRelay{CorrelationID: "abc", Payload: []byte("x")}
	env := wire.Envelope{Type: wire.MsgStartMigr, Payload: relay.Marshal()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.dispatch(ctx, 77, env)

	_, got, err := coordinator.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgStartMigr, got.Type)

	s.principalMu.Lock()
	assert.NotEmpty(t, s.migrCorrelationID)
	assert.Equal(t, 0, s.migrClient, "migrClient is set on ONE_STREAM_MIGR, not START_MIGR")
	s.principalMu.Unlock()
}

func TestDispatch_OneStreamMigrSetsMigrClient(t *testing.T) {
	s, bus, _ := newTestService(t, 1)
	s.cfg.StartMigrID = 500
	coordinator := bus.Endpoint(500)

	relay := wire.MigrationRelay{CorrelationID: "abc", Payload: []byte("x")}
	env := wire.Envelope{Type: wire.MsgOneStreamMigr, Payload: relay.Marshal()}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.dispatch(ctx, 77, env)

	_, got, err := coordinator.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.MsgOneStreamMigr, got.Type)

	s.principalMu.Lock()
	assert.Equal(t, 77, s.migrClient)
	s.principalMu.Unlock()
}

func TestDispatch_MigrationTokenBeforeStreamIsLoggedNoop(t *testing.T) {
	s, bus, _ := newTestService(t, 1)
	s.cfg.StartMigrID = 500
	coordinator := bus.Endpoint(500)

	relay := wire.MigrationRelay{CorrelationID: "abc"}
	env := wire.Envelope{Type: wire.MsgMigrationToken, Payload: relay.Marshal()}
	s.dispatch(context.Background(), 77, env)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := coordinator.Recv(ctx)
	assert.Error(t, err, "an out-of-sequence token must not be relayed")
}

func TestDispatch_MsgCountAggregatesPerShard(t *testing.T) {
	s, _, _ := newTestService(t, 2)
	msg := wire.MsgCount{Counts: map[int]uint64{0: 3, 1: 5}}
	env := wire.Envelope{Type: wire.MsgMsgCount, Payload: msg.Marshal()}
	s.dispatch(context.Background(), 0, env)

	s.principalMu.Lock()
	assert.Equal(t, uint64(3), s.msgCount[0])
	assert.Equal(t, uint64(5), s.msgCount[1])
	s.principalMu.Unlock()
}

func TestDispatch_ClientMsgCountIncrementsCounter(t *testing.T) {
	s, _, _ := newTestService(t, 1)
	env := wire.Envelope{Type: wire.MsgClientMsgCount}
	s.dispatch(context.Background(), 0, env)

	s.principalMu.Lock()
	assert.Equal(t, uint64(1), s.clientMsgCount)
	s.principalMu.Unlock()
}
