package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dreamware/skvs/internal/shard"
	"github.com/dreamware/skvs/internal/storage"
)

// Info is the /info response body
type Info struct {
	Addr              string             `json:"addr"`
	Workers           int                `json:"workers"`
	LockDelay         string             `json:"lock_delay"`
	ActiveConnections int                `json:"active_connections"`
	Stats             storage.StoreStats `json:"stats"`
	Buckets           []shard.ShardInfo  `json:"buckets"`
}

func (s *Server) startStatus() error {
	ln, err := net.Listen("tcp", s.cfg.StatusAddr)
	if err != nil {
		return errors.Wrapf(err, "listen status on %s", s.cfg.StatusAddr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/info", s.handleInfo)
	mux.Handle("/metrics", promhttp.Handler())

	s.status = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.statusAddr = ln.Addr()
	s.mu.Unlock()

	go func() {
		s.logger.Info("status listening", zap.Stringer("addr", ln.Addr()))
		if err := s.status.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server", zap.Error(err))
		}
	}()
	return nil
}

// StatusAddr returns the address of the status endpoint, or nil if disabled.
func (s *Server) StatusAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusAddr
}

func (s *Server) stopStatus() {
	if s.status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.status.Shutdown(ctx); err != nil {
		s.logger.Warn("status shutdown", zap.Error(err))
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	table := s.engine.Table()
	buckets := table.Snapshot()
	stats := storage.StoreStats{Buckets: len(buckets)}
	for _, b := range buckets {
		stats.Keys += b.Entries
		stats.Bytes += b.Bytes
	}

	var addr string
	if a := s.Addr(); a != nil {
		addr = a.String()
	}
	info := Info{
		Addr:              addr,
		Workers:           s.cfg.Workers,
		LockDelay:         table.LockDelay().String(),
		ActiveConnections: s.ActiveConnections(),
		Stats:             stats,
		Buckets:           buckets,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.logger.Warn("encode info", zap.Error(err))
	}
}
