package transport

import (
	"context"
	"errors"

	"github.com/dreamware/graphvt/internal/wire"
)

// ClientIDIncr is the start of the disjoint high range reserved for
// client endpoint ids, keeping them out of the timestamper and shard
// ranges regardless of cluster size (spec.md §6).
const ClientIDIncr = 1 << 32

// ErrTimeout is returned by Recv when no message arrived before the
// caller's ctx was done — the BUSYBEE_TIMEOUT case in
// spec.md §6/§7. Workers log it and retry; it is never fatal.
var ErrTimeout = errors.New("transport: recv timed out")

// Transport is a reliable, in-order, point-to-point message channel
// keyed by integer endpoint id. A send takes a destination id and an
// envelope; a recv yields the sender id and an envelope (spec.md §6).
//
// Implementations must deliver each message to exactly one Recv call
// even under concurrent callers, and must preserve FIFO order of
// messages sent from one endpoint to another — the per-(vt_id, shard)
// ordering guarantee in spec.md §5 depends on it.
type Transport interface {
	// Send delivers env to dest. Send is assumed non-blocking by the
	// timestamper core (spec.md §5); implementations that cannot
	// guarantee that should document the exception.
	Send(ctx context.Context, dest int, env wire.Envelope) error

	// Recv blocks until a message arrives or ctx is done, returning
	// ErrTimeout on the latter so callers can log and retry per
	// spec.md §7.
	Recv(ctx context.Context) (sender int, env wire.Envelope, err error)

	// Close releases any resources held by this endpoint.
	Close() error
}

// Addressing captures the endpoint-id partitioning used to tell
// timestampers, shards, and clients apart (spec.md §6).
type Addressing struct {
	NVT          int
	NShards      int
	ShardIDIncr  int
}

// IsTimestamper reports whether id falls in the timestamper range.
func (a Addressing) IsTimestamper(id int) bool {
	return id >= 0 && id < a.NVT
}

// IsShard reports whether id falls in the shard range.
func (a Addressing) IsShard(id int) bool {
	return id >= a.ShardIDIncr && id < a.ShardIDIncr+a.NShards
}

// ShardIndex converts a shard endpoint id to its [0, NShards) index.
// Callers must check IsShard first.
func (a Addressing) ShardIndex(id int) int {
	return id - a.ShardIDIncr
}

// ShardEndpoint is the inverse of ShardIndex.
func (a Addressing) ShardEndpoint(shard int) int {
	return a.ShardIDIncr + shard
}
