package timestamper

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSet exposes the diagnostic surface spec.md leaves unspecified
// in shape: ShardNodeCount, the watermark, and the MSG_COUNT /
// CLIENT_MSG_COUNT counters (spec.md §3, §4.6). Each Service registers
// its own metrics against the default registry, labeled by vt_id, so a
// single process hosting several replicas in tests doesn't collide.
type metricsSet struct {
	shardNodeCount *prometheus.GaugeVec
	maxDoneID      prometheus.Gauge
	maxDoneClkSum  prometheus.Gauge
	msgCount       *prometheus.CounterVec
	clientMsgCount prometheus.Counter
}

func newMetricsSet(vtID int) *metricsSet {
	constLabels := prometheus.Labels{"vt_id": fmt.Sprintf("%d", vtID)}
	m := &metricsSet{
		shardNodeCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "graphvt_shard_node_count",
			Help:        "Most recently reported node count per shard, from VT_NOP_ACK.",
			ConstLabels: constLabels,
		}, []string{"shard"}),
		maxDoneID: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "graphvt_max_done_id",
			Help:        "The highest node-program request id known to have completed.",
			ConstLabels: constLabels,
		}),
		maxDoneClkSum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "graphvt_max_done_clock_sum",
			Help:        "Sum of max_done_clk's components, a monotonic proxy for watermark progress.",
			ConstLabels: constLabels,
		}),
		msgCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "graphvt_shard_msg_count",
			Help:        "Diagnostic per-shard message count aggregated from MSG_COUNT reports.",
			ConstLabels: constLabels,
		}, []string{"shard"}),
		clientMsgCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "graphvt_client_msg_count",
			Help:        "Diagnostic count of CLIENT_MSG_COUNT reports seen.",
			ConstLabels: constLabels,
		}),
	}
	for _, c := range []prometheus.Collector{m.shardNodeCount, m.maxDoneID, m.maxDoneClkSum, m.msgCount, m.clientMsgCount} {
		// A second Service in the same process (e.g. two replicas in one
		// test binary) registers the same metric names under different
		// const labels, which is allowed; only a literal duplicate
		// registration errors, and we simply ignore that here since it
		// only happens when a test builds the same vt_id twice.
		_ = prometheus.Register(c)
	}
	return m
}

func (m *metricsSet) observeShardNodeCount(shard int, count uint64) {
	m.shardNodeCount.WithLabelValues(fmt.Sprintf("%d", shard)).Set(float64(count))
}

func (m *metricsSet) observeWatermark(maxDoneID uint64, clockSum uint64) {
	m.maxDoneID.Set(float64(maxDoneID))
	m.maxDoneClkSum.Set(float64(clockSum))
}

func (m *metricsSet) observeMsgCount(shard int, count uint64) {
	m.msgCount.WithLabelValues(fmt.Sprintf("%d", shard)).Add(float64(count))
}

func (m *metricsSet) observeClientMsgCount() {
	m.clientMsgCount.Inc()
}
