package clockid

import "fmt"

// VectorClock is a per-timestamper causal clock: one counter per
// timestamper replica in the deployment, plus the index of the
// component this clock's owner is allowed to advance locally.
//
// Invariant (spec.md §3): Clock[VTID] is monotonically non-decreasing
// and is only ever incremented by its owner. Every other component
// only ever advances in response to a received VT_CLOCK_UPDATE.
type VectorClock struct {
	Clock []uint64
	VTID  int
}

// NewVectorClock allocates a zeroed clock with nVT components, owned
// by the timestamper at index vtID.
func NewVectorClock(nVT, vtID int) VectorClock {
	return VectorClock{Clock: make([]uint64, nVT), VTID: vtID}
}

// Copy returns a deep copy, safe to hand to a caller outside the
// owning mutex.
func (vc VectorClock) Copy() VectorClock {
	out := VectorClock{Clock: make([]uint64, len(vc.Clock)), VTID: vc.VTID}
	copy(out.Clock, vc.Clock)
	return out
}

// IncrementOwn bumps the owner's own component and returns the new
// clock by value. Callers must hold the principal mutex (spec.md §4.1
// increment_clock).
func (vc *VectorClock) IncrementOwn() VectorClock {
	vc.Clock[vc.VTID]++
	return vc.Copy()
}

// UpdateFrom folds in a peer's advertised component value for otherVT,
// taking the max (spec.md §4.1 update_clock). It never touches the
// owner's own component.
func (vc *VectorClock) UpdateFrom(otherVT int, value uint64) {
	if otherVT == vc.VTID {
		return
	}
	if value > vc.Clock[otherVT] {
		vc.Clock[otherVT] = value
	}
}

// LessEq reports whether vc is componentwise less than or equal to
// other — the Lamport partial order used by the watermark invariants
// in spec.md §8 (property 2).
func (vc VectorClock) LessEq(other VectorClock) bool {
	for i := range vc.Clock {
		if vc.Clock[i] > other.Clock[i] {
			return false
		}
	}
	return true
}

// Compare implements the componentwise partial order plus a
// Kleppmann-style tiebreak on VTID when the two clocks are
// incomparable, producing a total order suitable for sorting mixed
// events from different timestampers.
//
// Returns -1 if vc orders before other and 1 if after. It returns 0
// when every component matches, whatever the two VTIDs are, and also
// when the clocks are concurrent but share a VTID.
func (vc VectorClock) Compare(other VectorClock) int {
	lessEq := vc.LessEq(other)
	greaterEq := other.LessEq(vc)
	switch {
	case lessEq && greaterEq:
		return 0
	case lessEq:
		return -1
	case greaterEq:
		return 1
	default:
		// Concurrent: break the tie deterministically by owning vt_id,
		// the way Kleppmann's causal-ordering note resolves concurrent
		// events — lower vt_id sorts first.
		if vc.VTID != other.VTID {
			if vc.VTID < other.VTID {
				return -1
			}
			return 1
		}
		return 0
	}
}

func (vc VectorClock) String() string {
	return fmt.Sprintf("VC{vt=%d, clock=%v}", vc.VTID, vc.Clock)
}
