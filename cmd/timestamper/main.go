// Package main runs one vector-timestamper replica: the message
// multiplexer (client and peer traffic) plus the heartbeat driver,
// with a diag HTTP server alongside for health checks and metrics.
// The process takes its vt_id as its sole positional argument, per
// spec.md §6, and everything else from the environment (internal/config).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/graphvt/internal/config"
	"github.com/dreamware/graphvt/internal/diag"
	"github.com/dreamware/graphvt/internal/mapper"
	"github.com/dreamware/graphvt/internal/timestamper"
	"github.com/dreamware/graphvt/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <vt_id>\n", os.Args[0])
		os.Exit(1)
	}
	vtID, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "vt_id must be an integer: %v\n", err)
		os.Exit(1)
	}

	cfg := config.FromEnv()
	tr, closeTr := newTransport(vtID, cfg)
	defer closeTr()

	nodeMapper := mapper.NewHashMapper(cfg.NShards)
	svc := timestamper.New(cfg, vtID, tr, nodeMapper)

	registry := diag.NewPlacementRegistry(cfg.NShards)
	diagSrv := diag.NewServer(cfg.MetricsAddr, registry)

	// monitor polls every shard this registry knows about (populated as
	// shards register themselves via POST /register, cmd/shard's
	// registerWithTimestampers) and drops a shard's placement once it
	// crosses the monitor's threshold of 3 consecutive misses, so a dead
	// shard doesn't linger in /shards forever.
	const healthCheckInterval = 5 * time.Second
	monitor := diag.NewHealthMonitor(healthCheckInterval)
	monitor.SetOnUnhealthy(func(peerID int) {
		log.Printf("timestamper %d: shard %d unhealthy, dropping its placement", vtID, peerID)
		registry.Remove(peerID)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.RunMultiplexer(ctx)
	})
	g.Go(func() error {
		svc.RunHeartbeat(ctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("timestamper %d: diag server listening on %s", vtID, cfg.MetricsAddr)
		return diagSrv.ListenAndServe()
	})
	g.Go(func() error {
		monitor.Run(ctx, registry.All)
		return nil
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		log.Printf("timestamper %d: shutting down", vtID)
	case <-ctx.Done():
	}

	cancel()
	if err := diagSrv.Shutdown(context.Background()); err != nil {
		log.Printf("timestamper %d: diag server shutdown error: %v", vtID, err)
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("timestamper %d: %v", vtID, err)
	}
	log.Printf("timestamper %d: stopped", vtID)
}

// newTransport wires a real TCPTransport when VT_LISTEN_ADDR and
// VT_PEERS are both set, and falls back to an in-process bus
// otherwise so a single machine can still run a demo deployment
// without any network configuration.
func newTransport(vtID int, cfg config.Config) (transport.Transport, func()) {
	listen := os.Getenv("VT_LISTEN_ADDR")
	peers := os.Getenv("VT_PEERS")
	if listen == "" || peers == "" {
		bus := transport.NewBus(256)
		tr := bus.Endpoint(vtID)
		return tr, func() { tr.Close() }
	}

	directory, err := transport.ParseDirectory(peers)
	if err != nil {
		log.Fatalf("timestamper %d: VT_PEERS: %v", vtID, err)
	}
	tr, err := transport.NewTCPTransport(vtID, listen, directory)
	if err != nil {
		log.Fatalf("timestamper %d: %v", vtID, err)
	}
	return tr, func() { tr.Close() }
}
