package diag

import (
	"fmt"
	"sync"
)

// PlacementRegistry tracks which physical address serves each shard
// id, the operational fact spec.md's wire protocol never carries
// (internal/transport.Addressing only derives shard *indices* from
// vt/shard counts, not where a shard process actually listens).
// Adapted from the teacher's ShardRegistry, trimmed to the single
// primary-per-shard model this domain uses: shards are not replicated
// the way the teacher's key-value shards were, so there is no
// primary/replica distinction to track.
type PlacementRegistry struct {
	mu        sync.RWMutex
	addrs     map[int]string
	numShards int
}

// NewPlacementRegistry creates a registry for a deployment of
// numShards shards.
func NewPlacementRegistry(numShards int) *PlacementRegistry {
	return &PlacementRegistry{
		addrs:     make(map[int]string),
		numShards: numShards,
	}
}

// Assign records that shardID is served at addr.
func (r *PlacementRegistry) Assign(shardID int, addr string) error {
	if shardID < 0 || shardID >= r.numShards {
		return fmt.Errorf("diag: shard id %d out of range [0, %d)", shardID, r.numShards)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs[shardID] = addr
	return nil
}

// Remove clears shardID's placement, e.g. once its process is
// confirmed down.
func (r *PlacementRegistry) Remove(shardID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.addrs, shardID)
}

// Lookup returns the address serving shardID, and whether one is known.
func (r *PlacementRegistry) Lookup(shardID int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.addrs[shardID]
	return addr, ok
}

// All returns a snapshot of every known shard placement.
func (r *PlacementRegistry) All() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]string, len(r.addrs))
	for k, v := range r.addrs {
		out[k] = v
	}
	return out
}

// NumShards returns the fixed shard count this registry was created with.
func (r *PlacementRegistry) NumShards() int {
	return r.numShards
}
