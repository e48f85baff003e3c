package timestamper

import (
	"context"
	"time"

	"github.com/dreamware/graphvt/internal/wire"
)

// RunHeartbeat drives the periodic NOP/clock-broadcast task described
// in spec.md §4.5 until ctx is cancelled. It is the one dedicated
// periodic task per timestamper; callers run it in its own goroutine.
func (s *Service) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.VTTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.heartbeatTick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// heartbeatTick runs one NOP phase followed by one clock-broadcast
// phase, both under periodicMu, NOP-first as spec.md §9 requires when
// both are due in the same tick.
func (s *Service) heartbeatTick(ctx context.Context) {
	s.periodicMu.Lock()
	defer s.periodicMu.Unlock()

	s.nopPhase(ctx)
	s.clockBroadcastPhase(ctx)
}

// nopPhase sends VT_NOP to every shard whose ToNop bit is set,
// piggybacking liveness, the watermark, and any newly-deliverable
// done-req acks, then clears ToNop.
func (s *Service) nopPhase(ctx context.Context) {
	if !s.toNop.Any() {
		return
	}
	toNop := s.toNop // snapshot of which shards to notify this tick

	perShardDone := make(map[int][]wire.DoneReq, s.cfg.NShards)

	s.principalMu.Lock()
	clk := s.vclk.IncrementOwn()
	reqID := s.ids.Next()
	maxDoneID := s.maxDoneID
	maxDoneClk := s.maxDoneClock.Copy()

	toNop.ForEachSet(func(shard int) {
		s.qts.IncrementShard(shard)
	})
	qtsSnap := s.qts.Snapshot()

	for progType, byID := range s.doneReqsPerShard {
		for id, acked := range byID {
			toNop.ForEachSet(func(shard int) {
				if acked.IsSet(shard) {
					return
				}
				acked.Set(shard)
				perShardDone[shard] = append(perShardDone[shard], wire.DoneReq{ProgType: progType, ReqID: uint64(id)})
			})
			if acked.All() {
				delete(byID, id)
			}
		}
	}
	vtID := s.vtID
	s.principalMu.Unlock()

	toNop.ForEachSet(func(shard int) {
		msg := wire.VTNop{
			VTID:         vtID,
			Clock:        clk.Clock,
			Qts:          qtsSnap,
			ReqID:        uint64(reqID),
			MaxDoneID:    uint64(maxDoneID),
			MaxDoneClock: maxDoneClk.Clock,
			ShardNodeCnt: s.shardNodeCount[shard],
			DoneReqs:     perShardDone[shard],
		}
		env := wire.Envelope{Type: wire.MsgVTNop, Payload: msg.Marshal()}
		if err := s.tr.Send(ctx, s.addr.ShardEndpoint(shard), env); err != nil {
			s.log.Printf("heartbeat: send VT_NOP to shard %d failed: %v", shard, err)
		}
	})

	s.toNop.ClearAll()
}

// clockBroadcastPhase sends VT_CLOCK_UPDATE to every peer once every
// peer has acked the previous broadcast, gating on clockUpdateAcks to
// apply simple backpressure (spec.md §4.5). It never advances the
// clock itself — only the NOP phase and stamping operations do that
// (spec.md §5's ordering guarantee 3) — it just reads the current
// value, whether or not the NOP phase refreshed it this tick.
func (s *Service) clockBroadcastPhase(ctx context.Context) {
	if s.cfg.NVT <= 1 || s.clockUpdateAcks != s.cfg.NVT-1 {
		return
	}
	s.clockUpdateAcks = 0

	s.principalMu.Lock()
	value := s.vclk.Clock[s.vtID]
	s.principalMu.Unlock()

	msg := wire.VTClockUpdate{FromVT: s.vtID, Value: value}
	env := wire.Envelope{Type: wire.MsgVTClockUpdate, Payload: msg.Marshal()}
	for peer := 0; peer < s.cfg.NVT; peer++ {
		if peer == s.vtID {
			continue
		}
		if err := s.tr.Send(ctx, peer, env); err != nil {
			s.log.Printf("heartbeat: send VT_CLOCK_UPDATE to vt %d failed: %v", peer, err)
		}
	}
}
