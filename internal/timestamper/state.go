package timestamper

import (
	"log"
	"os"
	"sync"

	"github.com/dreamware/graphvt/internal/clockid"
	"github.com/dreamware/graphvt/internal/config"
	"github.com/dreamware/graphvt/internal/mapper"
	"github.com/dreamware/graphvt/internal/transport"
)

// Service is one timestamper replica: the vector clock, qts vector,
// request-id bookkeeping, and heartbeat state described in spec.md §3,
// wired to a Transport and a NodeMapper.
type Service struct {
	cfg    config.Config
	addr   transport.Addressing
	tr     transport.Transport
	mapper mapper.NodeMapper
	log    *log.Logger
	vtID   int

	// principalMu guards everything in this block (spec.md §5).
	principalMu          sync.Mutex
	vclk                 clockid.VectorClock
	qts                  clockid.QueueTimestamp
	ids                  clockid.IdGenerator
	txReplies            map[clockid.RequestId]*txReplyEntry
	outstandingNodeProgs map[clockid.RequestId]uint64 // req id -> client id
	outstandingReqIDs    *idHeap
	doneReqIDs           *idHeap
	idToClock            map[clockid.RequestId]clockid.VectorClock
	maxDoneID            clockid.RequestId
	maxDoneClock         clockid.VectorClock
	doneReqsPerShard     map[string]map[clockid.RequestId]*shardSet
	migrClient           int    // endpoint id awaiting a migration reply, 0 if none
	migrCorrelationID    string // minted when the migration starts, stamped on every relayed message
	msgCount             map[int]uint64
	clientMsgCount       uint64
	loadedShards         shardSet
	maxLoadedAt          int64

	// periodicMu guards everything in this block, and is always taken
	// before principalMu on any path needing both (spec.md §5).
	periodicMu      sync.Mutex
	toNop           shardSet
	shardNodeCount  []uint64
	clockUpdateAcks int

	metrics *metricsSet
}

// New builds a Service for timestamper vtID within a deployment
// described by cfg, communicating over tr and resolving handles via m.
func New(cfg config.Config, vtID int, tr transport.Transport, m mapper.NodeMapper) *Service {
	s := &Service{
		cfg:  cfg,
		vtID: vtID,
		tr:   tr,
		mapper: m,
		addr: transport.Addressing{NVT: cfg.NVT, NShards: cfg.NShards, ShardIDIncr: cfg.ShardIDIncr},
		log:  log.New(os.Stderr, "vt: ", log.LstdFlags|log.Lmicroseconds),

		vclk:                 clockid.NewVectorClock(cfg.NVT, vtID),
		qts:                  clockid.NewQueueTimestamp(cfg.NShards),
		txReplies:            make(map[clockid.RequestId]*txReplyEntry),
		outstandingNodeProgs: make(map[clockid.RequestId]uint64),
		outstandingReqIDs:    newIDHeap(),
		doneReqIDs:           newIDHeap(),
		idToClock:            make(map[clockid.RequestId]clockid.VectorClock),
		maxDoneClock:         clockid.NewVectorClock(cfg.NVT, vtID),
		doneReqsPerShard:     make(map[string]map[clockid.RequestId]*shardSet),
		msgCount:             make(map[int]uint64),
		loadedShards:         newShardSet(cfg.NShards),

		toNop:          newShardSet(cfg.NShards),
		shardNodeCount: make([]uint64, cfg.NShards),

		metrics: newMetricsSet(vtID),
	}
	return s
}

// VTID returns this replica's own index.
func (s *Service) VTID() int {
	return s.vtID
}

// Snapshot returns a read-only view of the watermark, useful for
// diagnostics and tests. It takes the principal mutex briefly.
func (s *Service) Snapshot() (maxDoneID clockid.RequestId, maxDoneClock clockid.VectorClock) {
	s.principalMu.Lock()
	defer s.principalMu.Unlock()
	return s.maxDoneID, s.maxDoneClock.Copy()
}
