package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SkynetNext/serverinfo-rest/internal/config"
	"github.com/SkynetNext/serverinfo-rest/internal/connlimit"
	"github.com/SkynetNext/serverinfo-rest/internal/logger"
	"github.com/SkynetNext/serverinfo-rest/internal/metrics"
	"github.com/SkynetNext/serverinfo-rest/internal/router"
	"go.uber.org/zap"
)

// acceptBackoff is the pause after a failed accept, so a persistent error cannot spin the loop
const acceptBackoff = 10 * time.Millisecond

// Server is a minimal HTTP/1.1 server: one request per connection, then close
type Server struct {
	config  *config.ServerConfig
	router  *router.Router
	limiter *connlimit.Limiter

	mu       sync.Mutex // guards listener and loopDone
	listener net.Listener
	loopDone chan struct{}
	running  atomic.Bool

	conns    sync.WaitGroup // in-flight connections
}

// New creates a server for cfg dispatching through rtr. cfg must not change afterwards.
func New(cfg *config.ServerConfig, rtr *router.Router) *Server {
	return &Server{
		config:  cfg,
		router:  rtr,
		limiter: connlimit.NewLimiter(cfg.MaxConnections),
	}
}

// Start binds the listening socket and starts the accept loop.
// A bind failure is returned; nothing is left running in that case.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.New("server already running")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}

	loopDone := make(chan struct{})
	s.listener = listener
	s.loopDone = loopDone
	s.running.Store(true)

	go func() {
		defer close(loopDone)
		s.acceptLoop(ctx, listener)
	}()

	logger.L.Info("HTTP server started",
		zap.String("addr", listener.Addr().String()),
	)
	return nil
}

// Addr returns the bound address, nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Running reports whether the accept loop is active
func (s *Server) Running() bool {
	return s.running.Load()
}

// Stop closes the listening socket and waits for the accept loop to exit. In-flight
// connections are not interrupted; use Drain to wait for them.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	logger.L.Info("stopping HTTP server")

	s.mu.Lock()
	listener, loopDone := s.listener, s.loopDone
	s.mu.Unlock()

	// Closing the listener unblocks the pending Accept
	if err := listener.Close(); err != nil {
		logger.L.Debug("listener close error", zap.Error(err))
	}
	<-loopDone

	logger.L.Info("HTTP server stopped")
}

// Drain waits until every in-flight connection has been served or ctx is done
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acceptLoop accepts incoming connections until Stop
func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	logger.L.Debug("accept loop started")
	defer logger.L.Debug("accept loop ended")

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Check if listener was closed (normal shutdown)
			if !s.running.Load() {
				return
			}
			metrics.AcceptErrors.Inc()
			logger.L.Debug("accept connection error", zap.Error(err))
			time.Sleep(acceptBackoff)
			continue
		}

		metrics.TotalConnections.Inc()

		if !s.limiter.Allow() {
			metrics.RejectedConnections.Inc()
			logger.L.Debug("connection limit reached, closing",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Int64("max", s.limiter.Max()),
			)
			conn.Close()
			continue
		}

		s.conns.Add(1)
		go func(c net.Conn) {
			defer s.conns.Done()
			defer s.limiter.Release()
			s.handleConnection(ctx, c)
		}(conn)
	}
}
