// Package transport defines the point-to-point messaging abstraction
// the timestamper core depends on and is treated, per spec.md §1, as
// an external collaborator: only its interface is specified here.
//
// Addresses are partitioned by endpoint id: timestampers occupy
// [0, NVT), shards occupy [ShardIDIncr, ShardIDIncr+NShards), and
// clients occupy a disjoint high range (spec.md §6). Two concrete
// implementations are provided: an in-memory transport for tests and
// single-process demos, and a TCP transport for a real multi-process
// deployment, both built on the wire package's envelope codec.
package transport
