package clockid

import "sync/atomic"

// RequestId identifies a request within one timestamper. Uniqueness
// across the cluster comes from the coordinating timestamper retaining
// ownership of the request, not from any bits embedded in the id
// itself (spec.md §3).
type RequestId uint64

// IdGenerator is a monotonically increasing per-timestamper counter.
// Zero value is ready to use; the first generated id is 1, reserving 0
// as "no id" for callers that need a sentinel.
type IdGenerator struct {
	counter uint64
}

// Next returns the next id and advances the counter. Safe for
// concurrent use on its own, though in this system it is always
// called under the principal mutex alongside other stamping work
// (spec.md §4.1 generate_id).
func (g *IdGenerator) Next() RequestId {
	return RequestId(atomic.AddUint64(&g.counter, 1))
}
