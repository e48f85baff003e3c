package timestamper

import (
	"context"
	"fmt"

	"github.com/dreamware/graphvt/internal/clockid"
	"github.com/dreamware/graphvt/internal/wire"
)

// startNodeProg resolves args to shards, groups them into per-shard
// batches, stamps the request, and dispatches NODE_PROG to every
// participating shard (spec.md §4.3).
//
// A single arg equal to wire.GlobalArg means "broadcast to every
// shard" and must be the only arg supplied; mixing it with any other
// arg is a client error.
func (s *Service) startNodeProg(ctx context.Context, clientID uint64, progType string, args []uint64) error {
	global := len(args) == 1 && args[0] == wire.GlobalArg
	if !global {
		for _, a := range args {
			if a == wire.GlobalArg {
				return fmt.Errorf("start_node_prog: global arg must be the sole argument")
			}
		}
	}

	var shards []int
	batches := make(map[int][]uint64)
	if global {
		shards = make([]int, s.mapper.NumShards())
		for i := range shards {
			shards[i] = i
		}
	} else {
		for _, a := range args {
			shard, err := s.mapper.ResolveShard(a)
			if err != nil {
				return fmt.Errorf("start_node_prog: %w", err)
			}
			if _, seen := batches[shard]; !seen {
				shards = append(shards, shard)
			}
			batches[shard] = append(batches[shard], a)
		}
	}

	s.principalMu.Lock()
	reqTimestamp := s.vclk.IncrementOwn()
	reqID := s.ids.Next()
	s.outstandingNodeProgs[reqID] = clientID
	s.outstandingReqIDs.Push(reqID)
	s.idToClock[reqID] = reqTimestamp.Copy()
	vtID := s.vtID
	s.principalMu.Unlock()

	for _, shard := range shards {
		shardArgs := args
		if !global {
			shardArgs = batches[shard]
		}
		msg := wire.NodeProg{
			ProgType:  progType,
			Global:    global,
			VTID:      vtID,
			Timestamp: reqTimestamp.Clock,
			ReqID:     uint64(reqID),
			Args:      shardArgs,
		}
		env := wire.Envelope{Type: wire.MsgNodeProg, Payload: msg.Marshal()}
		if err := s.tr.Send(ctx, s.addr.ShardEndpoint(shard), env); err != nil {
			s.log.Printf("start_node_prog: send NODE_PROG to shard %d failed: %v", shard, err)
		}
	}
	return nil
}

// onNodeProgReturn handles a shard's NODE_PROG_RETURN: the first (and
// only) reply for reqID is forwarded to its client; any further
// return for the same id is dropped, matching the shard-side
// at-most-once-per-(req_id, entry point) contract in spec.md §4.7.
func (s *Service) onNodeProgReturn(ctx context.Context, progType string, reqID uint64, payload []byte) {
	id := clockid.RequestId(reqID)

	s.principalMu.Lock()
	clientID, ok := s.outstandingNodeProgs[id]
	if !ok {
		s.principalMu.Unlock()
		s.log.Printf("node_prog_return: unknown or already-returned req_id %d, dropping", reqID)
		return
	}
	if _, ok := s.doneReqsPerShard[progType]; !ok {
		s.doneReqsPerShard[progType] = make(map[clockid.RequestId]*shardSet)
	}
	empty := newShardSet(s.cfg.NShards)
	s.doneReqsPerShard[progType][id] = &empty
	delete(s.outstandingNodeProgs, id)
	s.markReqFinished(id)
	s.principalMu.Unlock()

	msg := wire.NodeProgReturn{ProgType: progType, ReqID: reqID, Payload: payload}
	env := wire.Envelope{Type: wire.MsgNodeProgReturn, Payload: msg.Marshal()}
	if err := s.tr.Send(ctx, clientEndpoint(clientID), env); err != nil {
		s.log.Printf("node_prog_return: forward to client %d failed: %v", clientID, err)
	}
}
