// Package diag provides the operational surface spec.md leaves
// unspecified: an HTTP /health and /metrics endpoint per process, a
// placement registry mapping shard ids to their physical addresses,
// and a health monitor that watches peers and reports when one goes
// quiet. It is adapted from the teacher's internal/cluster (PostJSON/
// GetJSON, NodeInfo) and internal/coordinator (HealthMonitor,
// ShardRegistry), repointed at vector-timestamper and shard processes
// instead of key-value storage nodes.
package diag
