// Package mapper provides the node-handle → shard-id mapping the
// timestamper core depends on as an external collaborator (spec.md
// §1): the core never computes shard placement itself, it asks a
// NodeMapper.
//
// The in-memory implementation here is adapted from the teacher's
// consistent-hashing shard registry and exists as a reference/test
// double — a real deployment would back NodeMapper with whatever
// service owns graph partitioning.
package mapper
