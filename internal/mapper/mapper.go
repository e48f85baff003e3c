package mapper

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// NodeMapper resolves a graph node handle to the shard that owns it.
// ResolveShard returning an error models the "handle not resolvable"
// failure that causes unpack_tx to reply CLIENT_TX_FAIL (spec.md
// §4.2).
type NodeMapper interface {
	ResolveShard(handle uint64) (shard int, err error)
	NumShards() int
}

// HashMapper is a consistent-hashing NodeMapper: a handle always maps
// to the same shard via FNV-1a, unless it has been explicitly
// unregistered via Forget. Adapted from the teacher's
// ShardRegistry.GetShardForKey, generalized from string keys to
// uint64 graph handles.
type HashMapper struct {
	mu        sync.RWMutex
	forgotten map[uint64]struct{}
	numShards int
}

// NewHashMapper creates a mapper over numShards shards, numbered
// [0, numShards).
func NewHashMapper(numShards int) *HashMapper {
	return &HashMapper{numShards: numShards, forgotten: make(map[uint64]struct{})}
}

// ResolveShard hashes handle to a shard index. Returns an error if
// handle has been explicitly Forget-ten (simulating a stale or
// deleted handle for tests of the CLIENT_TX_FAIL path) or if the
// mapper has no shards configured.
func (m *HashMapper) ResolveShard(handle uint64) (int, error) {
	if m.numShards <= 0 {
		return 0, fmt.Errorf("mapper: no shards configured")
	}
	m.mu.RLock()
	_, forgotten := m.forgotten[handle]
	m.mu.RUnlock()
	if forgotten {
		return 0, fmt.Errorf("mapper: handle %d does not resolve to any shard", handle)
	}

	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(handle >> (8 * i))
	}
	h.Write(buf[:])
	return int(h.Sum64() % uint64(m.numShards)), nil
}

// NumShards reports the total shard count this mapper was built for.
func (m *HashMapper) NumShards() int {
	return m.numShards
}

// Forget marks handle as unresolvable, so the next ResolveShard call
// for it fails. Used by tests exercising unpack_tx's failure path.
func (m *HashMapper) Forget(handle uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgotten[handle] = struct{}{}
}
