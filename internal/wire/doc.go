// Package wire defines the on-the-wire message envelope and message
// kinds exchanged between clients, timestampers, and shards.
//
// Every buffer begins with a fixed transport header (opaque to this
// package — owned by whatever point-to-point transport carries it),
// followed by a 4-byte little-endian msg_type, followed by a
// type-specific, length-prefixed payload (spec.md §6). Vector clocks
// serialize as a uint32 length followed by that many uint64
// components, also little-endian.
package wire
