package clockid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueTimestamp_IncrementShardIsPerShard(t *testing.T) {
	q := NewQueueTimestamp(3)
	assert.Equal(t, uint64(1), q.IncrementShard(0))
	assert.Equal(t, uint64(2), q.IncrementShard(0))
	assert.Equal(t, uint64(1), q.IncrementShard(2))
	assert.Equal(t, []uint64{2, 0, 1}, q.Counters)
}

func TestQueueTimestamp_SnapshotIsACopy(t *testing.T) {
	q := NewQueueTimestamp(2)
	q.IncrementShard(0)
	snap := q.Snapshot()
	q.IncrementShard(0)
	assert.Equal(t, []uint64{1, 0}, snap)
	assert.Equal(t, []uint64{2, 0}, q.Counters)
}

func TestIdGenerator_MonotonicallyIncreasing(t *testing.T) {
	var g IdGenerator
	first := g.Next()
	second := g.Next()
	assert.Equal(t, RequestId(1), first)
	assert.Equal(t, RequestId(2), second)
}
