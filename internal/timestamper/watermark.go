package timestamper

import "github.com/dreamware/graphvt/internal/clockid"

// markReqFinished implements the watermark engine (spec.md §4.4).
// Callers must already hold principalMu.
//
// If id is the smallest outstanding id, it — and every subsequent id
// already recorded as out-of-order-done — collapses into the
// monotonically advancing max_done_id/max_done_clk pair. Otherwise id
// is recorded as having finished out of order, to be collapsed later
// once the ids ahead of it finish.
func (s *Service) markReqFinished(id clockid.RequestId) {
	top, ok := s.outstandingReqIDs.Top()
	if !ok || top != id {
		s.doneReqIDs.Push(id)
		return
	}

	s.advanceWatermark(id)

	for {
		outTop, outOK := s.outstandingReqIDs.Top()
		doneTop, doneOK := s.doneReqIDs.Top()
		if !outOK || !doneOK || outTop != doneTop {
			break
		}
		s.doneReqIDs.Pop()
		s.advanceWatermark(outTop)
	}
}

// advanceWatermark pops id from outstandingReqIDs (which must be its
// current top) and advances max_done_id/max_done_clk to it.
func (s *Service) advanceWatermark(id clockid.RequestId) {
	s.outstandingReqIDs.Pop()
	s.maxDoneID = id
	s.maxDoneClock = s.idToClock[id]
	delete(s.idToClock, id)
	s.metrics.observeWatermark(uint64(s.maxDoneID), clockSum(s.maxDoneClock))
}

func clockSum(vc clockid.VectorClock) uint64 {
	var sum uint64
	for _, c := range vc.Clock {
		sum += c
	}
	return sum
}
