// Package main runs one reference shard process: a minimal stand-in
// for the out-of-scope graph storage engine (spec.md §1), wired over
// the same transport the timestamper core uses so the wire protocol
// in spec.md §4 can be exercised end to end.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/graphvt/internal/config"
	"github.com/dreamware/graphvt/internal/diag"
	"github.com/dreamware/graphvt/internal/shard"
	"github.com/dreamware/graphvt/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <shard_id>\n", os.Args[0])
		os.Exit(1)
	}
	shardID, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "shard_id must be an integer: %v\n", err)
		os.Exit(1)
	}

	cfg := config.FromEnv()
	tr, closeTr := newTransport(cfg.ShardIDIncr+shardID, cfg)
	defer closeTr()

	sh := shard.NewShard(shardID)
	svc := shard.New(cfg, sh, tr)
	diagSrv := diag.NewServer(cfg.MetricsAddr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error {
		log.Printf("shard %d: diag server listening on %s", shardID, cfg.MetricsAddr)
		return diagSrv.ListenAndServe()
	})

	announceCtx, announceCancel := context.WithTimeout(ctx, 5*time.Second)
	svc.AnnounceLoaded(announceCtx, time.Now().UnixNano())
	announceCancel()

	registerWithTimestampers(ctx, shardID, cfg.MetricsAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		log.Printf("shard %d: shutting down", shardID)
	case <-ctx.Done():
	}

	cancel()
	if err := diagSrv.Shutdown(context.Background()); err != nil {
		log.Printf("shard %d: diag server shutdown error: %v", shardID, err)
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("shard %d: %v", shardID, err)
	}
	log.Printf("shard %d: stopped", shardID)
}

// registerWithTimestampers posts this shard's placement to every
// timestamper's diag server named in VT_DIAG_PEERS ("vt_id=host:port,
// ..."), the diag-server counterpart of the VT_PEERS transport
// directory. Left unset in a single-process demo, where
// diag.PlacementRegistry simply stays empty and /shards reports {}.
func registerWithTimestampers(ctx context.Context, shardID int, ownDiagAddr string) {
	diagPeers := os.Getenv("VT_DIAG_PEERS")
	if diagPeers == "" {
		return
	}
	directory, err := transport.ParseDirectory(diagPeers)
	if err != nil {
		log.Printf("shard %d: VT_DIAG_PEERS: %v", shardID, err)
		return
	}
	peer := diag.PeerInfo{ID: shardID, Kind: "shard", Addr: ownDiagAddr, Status: "healthy"}
	for vtID, addr := range directory {
		url := "http://" + strings.TrimRight(addr, "/") + "/register"
		regCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := diag.PostJSON(regCtx, url, peer, nil)
		cancel()
		if err != nil {
			log.Printf("shard %d: register with timestamper %d at %s failed: %v", shardID, vtID, addr, err)
		}
	}
}

// newTransport mirrors cmd/timestamper's: a real TCPTransport when
// VT_LISTEN_ADDR and VT_PEERS are set, an in-process bus otherwise.
func newTransport(endpointID int, cfg config.Config) (transport.Transport, func()) {
	listen := os.Getenv("VT_LISTEN_ADDR")
	peers := os.Getenv("VT_PEERS")
	if listen == "" || peers == "" {
		bus := transport.NewBus(256)
		tr := bus.Endpoint(endpointID)
		return tr, func() { tr.Close() }
	}

	directory, err := transport.ParseDirectory(peers)
	if err != nil {
		log.Fatalf("shard %d: VT_PEERS: %v", endpointID-cfg.ShardIDIncr, err)
	}
	tr, err := transport.NewTCPTransport(endpointID, listen, directory)
	if err != nil {
		log.Fatalf("shard: %v", err)
	}
	return tr, func() { tr.Close() }
}
