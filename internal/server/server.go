package server

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/skvs/internal/config"
	"github.com/dreamware/skvs/internal/engine"
	"github.com/dreamware/skvs/internal/metrics"
)

// acceptBackoff is how long a worker waits after a failed Accept before
// trying again.
const acceptBackoff = 50 * time.Millisecond

// ErrServerStarted is returned when Serve is called twice.
var ErrServerStarted = errors.New("server already started")

// Server owns the engine and the worker pool for the lifetime of one Serve call.
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	logger *zap.Logger

	started atomic.Bool
	served  atomic.Int64 // Connections served since start

	mu       sync.Mutex
	closing  bool
	listener net.Listener
	conns    map[net.Conn]struct{}

	status     *http.Server
	statusAddr net.Addr
}

// New creates a server for cfg around eng. The server takes ownership of the
// engine and closes it when Serve returns.
func New(cfg *config.Config, eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		engine: eng,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.Address())
	}
	return s.Serve(ctx, ln)
}

// Serve runs the worker pool on ln until ctx is cancelled, then drains the
// workers and tears the table down. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerStarted
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if s.cfg.StatusAddr != "" {
		if err := s.startStatus(); err != nil {
			ln.Close()
			s.closeEngine()
			return err
		}
	}

	s.logger.Info("server started",
		zap.Stringer("addr", ln.Addr()),
		zap.Int("workers", s.cfg.Workers),
		zap.Int("buckets", s.engine.Table().BucketCount()),
		zap.Duration("lock-delay", s.engine.Table().LockDelay()))

	// Requests in flight at shutdown still get their answer
	reqCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i := 0; i < s.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			s.worker(reqCtx, id, ln)
			return nil
		})
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-stopped:
		}
	}()

	err := g.Wait()
	close(stopped)

	s.stopStatus()
	if cerr := s.closeEngine(); cerr != nil && err == nil {
		err = cerr
	}
	s.logger.Info("server stopped", zap.Int64("connections", s.served.Load()))
	return err
}

// Addr returns the protocol listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// worker accepts and serves connections one at a time until the listener is
// closed by shutdown.
func (s *Server) worker(ctx context.Context, id int, ln net.Listener) {
	log := s.logger.With(zap.Int("worker", id))
	log.Debug("worker ready")
	defer log.Debug("worker exited")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return
			}
			metrics.IOErrorsTotal.WithLabelValues("accept").Inc()
			log.Warn("accept failed", zap.Error(err))
			time.Sleep(acceptBackoff)
			continue
		}
		s.serveConn(ctx, log, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, log *zap.Logger, conn net.Conn) {
	log = log.With(zap.String("conn", uuid.NewString()), zap.Stringer("remote", conn.RemoteAddr()))

	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)
	defer conn.Close()

	s.served.Inc()
	metrics.ConnectionsTotal.Inc()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()
	log.Debug("connection accepted")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 512), s.cfg.MaxLineBytes)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		resp := s.engine.Serve(ctx, scanner.Text())
		w.WriteString(resp)
		w.WriteByte('\n')
		if err := w.Flush(); err != nil {
			metrics.IOErrorsTotal.WithLabelValues("write").Inc()
			log.Warn("write failed", zap.Error(err))
			return
		}
	}

	if err := scanner.Err(); err != nil && !s.isClosing() {
		metrics.IOErrorsTotal.WithLabelValues("read").Inc()
		log.Warn("read failed", zap.Error(err))
		return
	}
	log.Debug("connection closed")
}

// track registers conn for shutdown. It reports false once shutdown started.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// ActiveConnections returns the number of connections being served
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.closing = true
	s.logger.Info("shutting down", zap.Int("open-connections", len(s.conns)))

	if err := s.listener.Close(); err != nil {
		s.logger.Warn("close listener", zap.Error(err))
	}
	now := time.Now()
	for conn := range s.conns {
		conn.SetReadDeadline(now)
	}
}

// closeEngine optionally dumps the table and then tears it down.
func (s *Server) closeEngine() error {
	if s.cfg.DumpOnExit {
		var buf bytes.Buffer
		if err := s.engine.Table().Dump(&buf); err != nil {
			s.logger.Error("dump table", zap.Error(err))
		} else {
			s.logger.Info("table dump", zap.String("dump", buf.String()))
		}
	}
	if err := s.engine.Close(); err != nil {
		s.logger.Error("teardown failed", zap.Error(err))
		return err
	}
	return nil
}
