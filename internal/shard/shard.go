// Package shard is a reference implementation of the shard side of
// the protocol spec.md §4.7 describes from the coordinator's point of
// view: it applies TX_INIT writes in the order they arrive, runs node
// programs, and replies to VT_NOP with a VT_NOP_ACK. The real storage
// engine is explicitly out of scope (spec.md §1); this package is the
// minimal collaborator needed to exercise internal/timestamper end to
// end, adapted from the teacher's internal/shard (which played the
// same "storage unit" role for key-value data).
package shard

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dreamware/graphvt/internal/clockid"
	"github.com/dreamware/graphvt/internal/graphstore"
	"github.com/dreamware/graphvt/internal/wire"
)

// ErrMalformedWrite is returned by ApplyWrite when a write carries
// fewer operands than its Kind requires. unpackTx only guarantees
// len(Operands) >= 1 (spec.md §4.2), so a shard must still validate
// the rest itself rather than index blindly.
var ErrMalformedWrite = errors.New("shard: malformed write")

// requiredOperands reports how many operands each UpdateKind needs:
// one handle for a create/delete, two for an edge, three for a
// property set (handle, key, value).
func requiredOperands(kind wire.UpdateKind) int {
	switch kind {
	case wire.UpdateNodeCreate, wire.UpdateNodeDelete:
		return 1
	case wire.UpdateEdgeCreate, wire.UpdateEdgeDelete:
		return 2
	case wire.UpdatePropertySet:
		return 3
	default:
		return 0
	}
}

// Stats tracks operation counts for one shard, mirroring the
// teacher's OperationStats: atomic counters, cumulative since
// creation, safe to read concurrently with writers.
type Stats struct {
	TxWritesApplied uint64
	NodeProgsRun    uint64
	NopsHandled     uint64
	Pruned          uint64
}

// Shard owns one partition of the graph and the counters describing
// its activity. ID is immutable; Store is swappable (currently always
// a graphstore.MemoryStore, but the field is an interface so a
// persistent backend could replace it without touching the service
// layer, the same flexibility the teacher's Shard.Store gave its
// key-value engine).
type Shard struct {
	Store graphstore.Store
	ID    int

	txWritesApplied uint64
	nodeProgsRun    uint64
	nopsHandled     uint64
	pruned          uint64
}

// NewShard creates an empty shard with ID id, backed by an in-memory
// graphstore.
func NewShard(id int) *Shard {
	return &Shard{ID: id, Store: graphstore.NewMemoryStore()}
}

// ApplyWrite executes one PendingUpdate against the graph store, in
// the qts order its caller already established by sending writes in
// submission order (spec.md §3 PendingTx invariant). clock is the
// transaction's vector timestamp, stamped onto any tombstone this
// write creates so Prune can later reclaim it.
func (s *Shard) ApplyWrite(u wire.Update, clock []uint64) error {
	if n := requiredOperands(u.Kind); len(u.Operands) < n {
		return fmt.Errorf("%w: kind %v needs %d operands, got %d", ErrMalformedWrite, u.Kind, n, len(u.Operands))
	}
	vc := clockid.VectorClock{Clock: clock}
	var err error
	switch u.Kind {
	case wire.UpdateNodeCreate:
		err = s.Store.CreateNode(u.Operands[0])
	case wire.UpdateNodeDelete:
		err = s.Store.DeleteNode(u.Operands[0], vc)
	case wire.UpdateEdgeCreate:
		err = s.Store.CreateEdge(u.Operands[0], u.Operands[1])
	case wire.UpdateEdgeDelete:
		err = s.Store.DeleteEdge(u.Operands[0], u.Operands[1], vc)
	case wire.UpdatePropertySet:
		err = s.Store.SetProperty(u.Operands[0], u.Operands[1], u.Operands[2])
	}
	if err == nil {
		atomic.AddUint64(&s.txWritesApplied, 1)
	}
	return err
}

// RunNodeProg records that a node program ran against this shard.
// The actual traversal logic lives in the prog registry (service.go);
// this just keeps the stats counter alongside the other operation
// counts.
func (s *Shard) RunNodeProg() {
	atomic.AddUint64(&s.nodeProgsRun, 1)
}

// Prune discards tombstones the watermark has subsumed and records
// how many were reclaimed.
func (s *Shard) Prune(watermark clockid.VectorClock) int {
	n := s.Store.Prune(watermark)
	atomic.AddUint64(&s.pruned, uint64(n))
	atomic.AddUint64(&s.nopsHandled, 1)
	return n
}

// GetStats returns a snapshot of this shard's counters. Each counter
// is loaded atomically on its own; the four are not read as one unit.
func (s *Shard) GetStats() Stats {
	return Stats{
		TxWritesApplied: atomic.LoadUint64(&s.txWritesApplied),
		NodeProgsRun:    atomic.LoadUint64(&s.nodeProgsRun),
		NopsHandled:     atomic.LoadUint64(&s.nopsHandled),
		Pruned:          atomic.LoadUint64(&s.pruned),
	}
}
