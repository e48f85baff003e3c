package shard

import (
	"context"
	"encoding/binary"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/graphvt/internal/clockid"
	"github.com/dreamware/graphvt/internal/config"
	"github.com/dreamware/graphvt/internal/transport"
	"github.com/dreamware/graphvt/internal/wire"
)

// ProgFunc is one registered node program: a read-only function of
// the shard's graph and the caller's arguments, returning a single
// uint64 result. Real node programs (reachability, shortest path,
// n-gram) are explicitly out of scope (spec.md §1); these stand in
// for them so NODE_PROG/NODE_PROG_RETURN can be exercised end to end.
type ProgFunc func(s *Shard, args []uint64) uint64

// DefaultPrograms are the node programs every Service registers
// unless overridden, named after the kind of question they answer.
func DefaultPrograms() map[string]ProgFunc {
	return map[string]ProgFunc{
		"node_count": func(s *Shard, _ []uint64) uint64 {
			return s.Store.NodeCount()
		},
		"has_node": func(s *Shard, args []uint64) uint64 {
			if len(args) == 0 {
				return 0
			}
			if s.Store.HasNode(args[0]) {
				return 1
			}
			return 0
		},
		"has_edge": func(s *Shard, args []uint64) uint64 {
			if len(args) < 2 {
				return 0
			}
			if s.Store.HasEdge(args[0], args[1]) {
				return 1
			}
			return 0
		},
	}
}

// Service runs one shard's side of the wire protocol: a pool of
// worker goroutines receiving TX_INIT/NODE_PROG/VT_NOP and replying,
// the same symmetric-worker shape as the timestamper's message loop
// (internal/timestamper/messageloop.go), generalized to the shard's
// smaller message set.
type Service struct {
	shard *Shard
	tr    transport.Transport
	cfg   config.Config
	progs map[string]ProgFunc
	log   *log.Logger

	mu      sync.Mutex
	seenReq map[uint64]bool // at-most-once NODE_PROG_RETURN per req_id, spec.md §4.7
}

// New builds a shard Service over tr, running the given shard.
func New(cfg config.Config, sh *Shard, tr transport.Transport) *Service {
	return &Service{
		shard:   sh,
		tr:      tr,
		cfg:     cfg,
		progs:   DefaultPrograms(),
		log:     log.New(os.Stderr, "shard: ", log.LstdFlags|log.Lmicroseconds),
		seenReq: make(map[uint64]bool),
	}
}

// AnnounceLoaded reports LOADED_GRAPH to every timestamper in the
// deployment, as a freshly started shard with an empty graphstore
// would do once it finished loading (spec.md §4.6 LOADED_GRAPH row).
func (s *Service) AnnounceLoaded(ctx context.Context, loadedAt int64) {
	msg := wire.LoadedGraph{ShardID: s.shard.ID, LoadedAt: loadedAt}
	env := wire.Envelope{Type: wire.MsgLoadedGraph, Payload: msg.Marshal()}
	for vt := 0; vt < s.cfg.NVT; vt++ {
		if err := s.tr.Send(ctx, vt, env); err != nil {
			s.log.Printf("LOADED_GRAPH: send to vt %d failed: %v", vt, err)
		}
	}
}

// Run starts NThreads worker goroutines competing on the same Recv
// endpoint. It blocks until ctx is cancelled or a worker hits a
// non-recoverable error.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.NThreads; i++ {
		g.Go(func() error {
			return s.workerLoop(ctx)
		})
	}
	return g.Wait()
}

func (s *Service) workerLoop(ctx context.Context) error {
	for {
		sender, env, err := s.tr.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == transport.ErrTimeout {
				continue
			}
			s.log.Printf("recv error, retrying: %v", err)
			continue
		}
		s.dispatch(ctx, sender, env)
	}
}

func (s *Service) dispatch(ctx context.Context, sender int, env wire.Envelope) {
	switch env.Type {
	case wire.MsgTxInit:
		s.handleTxInit(ctx, sender, env.Payload)
	case wire.MsgNodeProg:
		s.handleNodeProg(ctx, sender, env.Payload)
	case wire.MsgVTNop:
		s.handleVTNop(ctx, sender, env.Payload)
	default:
		s.log.Printf("unhandled message type %v from %d", env.Type, sender)
	}
}

func (s *Service) handleTxInit(ctx context.Context, sender int, payload []byte) {
	req, err := wire.UnmarshalTxInit(payload)
	if err != nil {
		s.log.Printf("TX_INIT: malformed payload from %d: %v", sender, err)
		return
	}
	for _, u := range req.Writes {
		if err := s.shard.ApplyWrite(u, req.Timestamp); err != nil {
			s.log.Printf("TX_INIT: tx %d write %v failed: %v", req.TxID, u.Kind, err)
		}
	}
	done := wire.TxDone{TxID: req.TxID}
	env := wire.Envelope{Type: wire.MsgTxDone, Payload: done.Marshal()}
	if err := s.tr.Send(ctx, sender, env); err != nil {
		s.log.Printf("TX_DONE: send to %d failed: %v", sender, err)
	}
}

func (s *Service) handleNodeProg(ctx context.Context, sender int, payload []byte) {
	req, err := wire.UnmarshalNodeProg(payload)
	if err != nil {
		s.log.Printf("NODE_PROG: malformed payload from %d: %v", sender, err)
		return
	}

	s.mu.Lock()
	if s.seenReq[req.ReqID] {
		s.mu.Unlock()
		return
	}
	s.seenReq[req.ReqID] = true
	s.mu.Unlock()

	prog, ok := s.progs[req.ProgType]
	var result uint64
	if !ok {
		s.log.Printf("NODE_PROG: unknown prog type %q, returning 0", req.ProgType)
	} else {
		result = prog(s.shard, req.Args)
	}
	s.shard.RunNodeProg()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], result)
	ret := wire.NodeProgReturn{ProgType: req.ProgType, ReqID: req.ReqID, Payload: buf[:]}
	env := wire.Envelope{Type: wire.MsgNodeProgReturn, Payload: ret.Marshal()}
	if err := s.tr.Send(ctx, sender, env); err != nil {
		s.log.Printf("NODE_PROG_RETURN: send to %d failed: %v", sender, err)
	}
}

func (s *Service) handleVTNop(ctx context.Context, sender int, payload []byte) {
	req, err := wire.UnmarshalVTNop(payload)
	if err != nil {
		s.log.Printf("VT_NOP: malformed payload from %d: %v", sender, err)
		return
	}
	s.shard.Prune(clockid.VectorClock{Clock: req.MaxDoneClock})

	ack := wire.VTNopAck{ShardID: s.shard.ID, NodeCount: s.shard.Store.NodeCount()}
	env := wire.Envelope{Type: wire.MsgVTNopAck, Payload: ack.Marshal()}
	if err := s.tr.Send(ctx, sender, env); err != nil {
		s.log.Printf("VT_NOP_ACK: send to %d failed: %v", sender, err)
	}
}
