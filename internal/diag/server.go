package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts the /health and /metrics endpoints every timestamper
// and shard process exposes, following the teacher's cmd/coordinator
// pattern of a single *http.Server wrapped for graceful shutdown.
type Server struct {
	httpSrv *http.Server
}

// NewServer builds a diag HTTP server bound to addr. registry may be
// nil (e.g. a shard process has no placements to report).
func NewServer(addr string, registry *PlacementRegistry) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.Handle("/metrics", promhttp.Handler())
	if registry != nil {
		mux.HandleFunc("/shards", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(registry.All())
		})
		// /register is where a shard process announces its own placement
		// on startup, via PostJSON with a PeerInfo body (see cmd/shard's
		// registerWithTimestampers). Only PeerInfo.Kind == "shard" carries
		// a placement worth recording; anything else is acknowledged and
		// dropped.
		mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
			var peer PeerInfo
			if err := json.NewDecoder(r.Body).Decode(&peer); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if peer.Kind == "shard" {
				if err := registry.Assign(peer.ID, peer.Addr); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "registered"})
		})
	}
	return &Server{httpSrv: &http.Server{Addr: addr, Handler: mux}}
}

// ListenAndServe blocks serving until the server is shut down.
// http.ErrServerClosed is swallowed, matching the teacher's shutdown idiom.
func (s *Server) ListenAndServe() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, giving in-flight requests up
// to 5 seconds to finish, mirroring cmd/coordinator/main.go's shutdown
// timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}
