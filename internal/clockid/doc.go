// Package clockid implements the vector-clock, queue-timestamp, and
// request-id primitives a timestamper uses to order writes and node
// programs across the cluster.
//
// # Overview
//
// Three primitives live here, each owned by exactly one timestamper
// replica at runtime:
//
//   - VectorClock: a causal clock with one component per timestamper.
//     Only the owner may advance its own component; every other
//     component advances only on a received VT_CLOCK_UPDATE.
//   - QueueTimestamp: a per-shard FIFO sequence counter. qts[s] is the
//     sequence number of the most recent message this timestamper sent
//     to shard s; it is incremented before each new message is stamped.
//   - id: a monotonically increasing per-timestamper request-id
//     generator.
//
// None of these types do their own locking — callers serialize access
// under the timestamper's principal mutex, exactly as spec'd in
// spec.md §5.
package clockid
