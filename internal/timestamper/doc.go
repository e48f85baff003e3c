// Package timestamper implements the vector-timestamper core: the
// coordination component that assigns vector clocks, per-shard queue
// sequence numbers, and request ids to client write transactions and
// node-program requests, then tracks them through to completion and
// advances the cluster-wide "max completed" watermark (spec.md §§2–5).
//
// A Service owns exactly one timestamper replica's state. It never
// talks to storage directly — all graph mutation and traversal
// happens on shards, reached only through a transport.Transport, with
// shard placement resolved through a mapper.NodeMapper. Both are
// external collaborators per spec.md §1.
//
// Concurrency model (spec.md §5): every field touched by the
// transaction and node-program dispatchers and the watermark engine
// lives behind principalMu. Every field touched only by the heartbeat
// driver lives behind periodicMu, which is always acquired before
// principalMu on any path that needs both. Worker goroutines block
// only inside Transport.Recv; the heartbeat goroutine blocks only in
// its ticker.
package timestamper
