// Package graphstore holds the node/edge/property store backing the
// reference shard implementation in internal/shard. It intentionally
// does not attempt to be a real graph database: spec.md treats the
// storage engine as an out-of-scope collaborator, and this package is
// only the minimal stand-in needed to run the core end to end.
package graphstore
