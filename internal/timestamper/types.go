package timestamper

import (
	"github.com/dreamware/graphvt/internal/clockid"
	"github.com/dreamware/graphvt/internal/wire"
)

// PendingUpdate is one mutation within a PendingTx, after unpack_tx
// has resolved its target shard. Qts is filled in by begin_transaction
// at stamp time (spec.md §3).
type PendingUpdate struct {
	Kind     wire.UpdateKind
	Loc1     int
	Operands []uint64
	Qts      []uint64
}

// PendingTx is a client-originated transaction, staged for stamping
// (spec.md §3). Within one PendingTx, writes destined for the same
// shard keep their submission order — that order becomes their
// execution order on that shard.
type PendingTx struct {
	ClientID  uint64
	Timestamp clockid.VectorClock
	ID        clockid.RequestId
	Writes    []PendingUpdate
}

// txReplyEntry is the value side of TxReplyTracker (spec.md §3): the
// client to notify and how many non-empty shard partitions are still
// outstanding.
type txReplyEntry struct {
	clientID  uint64
	remaining int
}

