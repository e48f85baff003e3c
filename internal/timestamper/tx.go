package timestamper

import (
	"context"
	"fmt"

	"github.com/dreamware/graphvt/internal/clockid"
	"github.com/dreamware/graphvt/internal/transport"
	"github.com/dreamware/graphvt/internal/wire"
)

// unpackTx resolves every write's target shard through the NodeMapper,
// returning a PendingTx ready for beginTransaction, or an error if any
// handle fails to resolve (spec.md §4.2, §4.6's CLIENT_TX_INIT row).
//
// A write's target handle is its first operand; a write always
// carries at least one operand (the entity it mutates).
func (s *Service) unpackTx(clientID uint64, writes []wire.Update) (PendingTx, error) {
	out := make([]PendingUpdate, len(writes))
	for i, w := range writes {
		if len(w.Operands) == 0 {
			return PendingTx{}, fmt.Errorf("unpack_tx: write %d has no operands", i)
		}
		shard, err := s.mapper.ResolveShard(w.Operands[0])
		if err != nil {
			return PendingTx{}, fmt.Errorf("unpack_tx: %w", err)
		}
		out[i] = PendingUpdate{Kind: w.Kind, Loc1: shard, Operands: w.Operands}
	}
	return PendingTx{ClientID: clientID, Writes: out}, nil
}

// beginTransaction stamps tx with a qts snapshot per write, a vector
// clock, and a request id, then dispatches one TX_INIT per non-empty
// shard partition (spec.md §4.2).
func (s *Service) beginTransaction(ctx context.Context, tx PendingTx) {
	partitions := make(map[int][]PendingUpdate)
	order := make([]int, 0, s.cfg.NShards)

	s.principalMu.Lock()
	for i := range tx.Writes {
		u := &tx.Writes[i]
		s.qts.IncrementShard(u.Loc1)
		u.Qts = s.qts.Snapshot()
		if _, seen := partitions[u.Loc1]; !seen {
			order = append(order, u.Loc1)
		}
		partitions[u.Loc1] = append(partitions[u.Loc1], *u)
	}

	tx.Timestamp = s.vclk.IncrementOwn()
	tx.ID = s.ids.Next()

	s.txReplies[tx.ID] = &txReplyEntry{clientID: tx.ClientID, remaining: len(order)}
	vtID := s.vtID
	s.principalMu.Unlock()

	for _, shard := range order {
		writes := partitions[shard]
		wireWrites := make([]wire.Update, len(writes))
		for i, w := range writes {
			wireWrites[i] = wire.Update{Kind: w.Kind, Loc1: w.Loc1, Operands: w.Operands, Qts: w.Qts}
		}
		msg := wire.TxInit{
			VTID:      vtID,
			Timestamp: tx.Timestamp.Clock,
			FirstQts:  writes[0].Qts[shard],
			TxID:      uint64(tx.ID),
			Writes:    wireWrites,
		}
		env := wire.Envelope{Type: wire.MsgTxInit, Payload: msg.Marshal()}
		if err := s.tr.Send(ctx, s.addr.ShardEndpoint(shard), env); err != nil {
			s.log.Printf("begin_transaction: send TX_INIT to shard %d failed: %v", shard, err)
		}
	}
}

// endTransaction handles a TX_DONE: decrementing the outstanding-shard
// count for txID and, once it reaches zero, replying CLIENT_TX_DONE
// (spec.md §4.2). An unknown txID is a late or duplicate ack and is
// silently ignored.
func (s *Service) endTransaction(ctx context.Context, txID uint64) {
	id := clockid.RequestId(txID)

	s.principalMu.Lock()
	entry, ok := s.txReplies[id]
	if !ok {
		s.principalMu.Unlock()
		s.log.Printf("end_transaction: unknown tx_id %d, dropping", txID)
		return
	}
	entry.remaining--
	var clientID uint64
	done := entry.remaining == 0
	if done {
		clientID = entry.clientID
		delete(s.txReplies, id)
	}
	s.principalMu.Unlock()

	if !done {
		return
	}
	msg := wire.ClientTxDone{TxID: txID}
	env := wire.Envelope{Type: wire.MsgClientTxDone, Payload: msg.Marshal()}
	if err := s.tr.Send(ctx, clientEndpoint(clientID), env); err != nil {
		s.log.Printf("end_transaction: send CLIENT_TX_DONE to client %d failed: %v", clientID, err)
	}
}

// clientEndpoint maps a client id to its transport endpoint id in the
// disjoint high range (spec.md §6).
func clientEndpoint(clientID uint64) int {
	return int(clientID) + transport.ClientIDIncr
}
