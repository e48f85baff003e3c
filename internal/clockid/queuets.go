package clockid

// QueueTimestamp is the per-shard FIFO sequence vector a single
// timestamper owns. Counters[s] is the sequence number of the most
// recent message this timestamper sent to shard s (0 before the
// first); IncrementShard produces the number for the next one.
//
// Invariant (spec.md §3): per (vt_id, s) pair, messages leave the
// timestamper in strictly increasing Counters[s] order and shards
// execute them in that order.
type QueueTimestamp struct {
	Counters []uint64
}

// NewQueueTimestamp allocates a zeroed qts vector for nShards shards.
func NewQueueTimestamp(nShards int) QueueTimestamp {
	return QueueTimestamp{Counters: make([]uint64, nShards)}
}

// IncrementShard bumps Counters[shard] and returns the new value.
// Callers must hold the principal mutex.
func (q *QueueTimestamp) IncrementShard(shard int) uint64 {
	q.Counters[shard]++
	return q.Counters[shard]
}

// Snapshot returns a copy of the full vector, safe to attach to an
// outgoing message after releasing the principal mutex.
func (q QueueTimestamp) Snapshot() []uint64 {
	out := make([]uint64, len(q.Counters))
	copy(out, q.Counters)
	return out
}
