package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SkynetNext/serverinfo-rest/internal/api"
	"github.com/SkynetNext/serverinfo-rest/internal/auth"
	"github.com/SkynetNext/serverinfo-rest/internal/cache"
	"github.com/SkynetNext/serverinfo-rest/internal/config"
	"github.com/SkynetNext/serverinfo-rest/internal/events"
	"github.com/SkynetNext/serverinfo-rest/internal/logger"
	"github.com/SkynetNext/serverinfo-rest/internal/metrics"
	"github.com/SkynetNext/serverinfo-rest/internal/middleware"
	"github.com/SkynetNext/serverinfo-rest/internal/redis"
	"github.com/SkynetNext/serverinfo-rest/internal/retry"
	"github.com/SkynetNext/serverinfo-rest/internal/router"
	"github.com/SkynetNext/serverinfo-rest/internal/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// redisRetry governs roster loads and event re-subscription
var redisRetry = retry.Policy{
	Attempts: 5,
	Delay:    200 * time.Millisecond,
	MaxDelay: 5 * time.Second,
}

// Service owns the player cache, the host-event feed and the HTTP server
type Service struct {
	mu     sync.Mutex // guards cfg, server and closed
	cfg    *config.Config
	closed bool

	cache       *cache.PlayerCache
	bridge      *events.Bridge
	redisClient *redis.Client // nil when redis is disabled
	server      *server.Server

	metricsServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the service for cfg. When redis is enabled the connection is checked here.
func New(cfg *config.Config) (*Service, error) {
	c := cache.NewPlayerCache()
	s := &Service{
		cfg:    cfg,
		cache:  c,
		bridge: events.NewBridge(c),
	}

	if cfg.Redis.Enabled {
		redisCli := redis.NewClient(&cfg.Redis)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisCli.Ping(ctx); err != nil {
			redisCli.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.redisClient = redisCli
	}

	return s, nil
}

// Start subscribes to host events, seeds the cache, starts the background feeds and
// binds the HTTP server. A failure is returned and leaves nothing running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("service already shut down")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	// 1. Follow host events and load the current roster
	if s.redisClient != nil {
		seeded := make(chan error, 1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watchEvents(s.ctx, seeded)
		}()
		if err := <-seeded; err != nil {
			s.cancel()
			s.wg.Wait()
			return err
		}
	}

	// 2. Start metrics server
	if err := s.startMetricsServer(); err != nil {
		s.cancel()
		s.wg.Wait()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 3. Initialize access logger with batching
	middleware.InitAccessLogger(100, 5*time.Second)

	// 4. Start the REST API
	srv, err := s.startServer(s.cfg)
	if err != nil {
		s.cancel()
		s.stopMetricsServer()
		s.wg.Wait()
		middleware.ShutdownAccessLogger()
		return err
	}
	s.server = srv

	logger.L.Debug("configuration",
		zap.String("log_level", s.cfg.LogLevel),
		zap.String("host", s.cfg.Server.Host),
		zap.Int("port", s.cfg.Server.Port),
		zap.Bool("enable_cors", s.cfg.Server.EnableCors),
		zap.String("api_prefix", s.cfg.Server.APIPrefix),
		zap.Duration("read_timeout", s.cfg.Server.ReadTimeout),
		zap.Bool("auth_enabled", s.cfg.Auth.Enabled),
		zap.Bool("redis_enabled", s.cfg.Redis.Enabled),
	)
	logger.L.Info("REST API available",
		zap.String("url", apiURL(srv.Addr(), s.cfg.Server.APIPrefix)),
	)

	return nil
}

// Reload applies a new configuration by replacing the HTTP server. Redis and metrics
// settings only take effect on restart. If the new server cannot bind, the previous
// configuration keeps serving and the error is returned.
func (s *Service) Reload(cfg *config.Config) error {
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.server == nil {
		return errors.New("service not started")
	}

	logger.SetLevel(cfg.LogLevel)

	if cfg.Redis != s.cfg.Redis || cfg.Server.MetricsPort != s.cfg.Server.MetricsPort {
		logger.L.Warn("redis and metrics settings changed, restart to apply")
	}

	// The old listener has to go first when host and port are unchanged
	s.server.Stop()

	srv, err := s.startServer(cfg)
	if err != nil {
		logger.L.Error("failed to apply new configuration, restoring previous", zap.Error(err))
		old, restoreErr := s.startServer(s.cfg)
		if restoreErr != nil {
			return fmt.Errorf("%w; restore failed: %v", err, restoreErr)
		}
		s.server = old
		return err
	}

	s.server = srv
	s.cfg = cfg

	logger.L.Info("configuration updated successfully",
		zap.String("url", apiURL(srv.Addr(), cfg.Server.APIPrefix)),
	)
	return nil
}

// Shutdown stops accepting connections, waits for in-flight requests up to ctx,
// then stops the background feeds. The service cannot be started or reloaded
// afterwards; later calls return nil.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// 1. Stop accepting new connections
	if s.server != nil {
		s.server.Stop()

		// 2. Wait for in-flight requests (with timeout)
		if err := s.server.Drain(ctx); err != nil {
			logger.L.Warn("in-flight requests still running at shutdown", zap.Error(err))
		}
		s.server = nil
	}

	// 3. Stop the event feed
	if s.cancel != nil {
		s.cancel()
	}
	s.stopMetricsServer()
	s.wg.Wait()

	var errs []error

	// 4. Close Redis connection
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis connection: %w", err))
		}
	}

	// 5. Flush access log
	middleware.ShutdownAccessLogger()

	s.cache.Clear()
	metrics.CachedPlayers.Set(0)

	return errors.Join(errs...)
}

// Cache returns the player cache
func (s *Service) Cache() *cache.PlayerCache {
	return s.cache
}

// Bridge returns the event bridge that host integrations call on join and leave
func (s *Service) Bridge() *events.Bridge {
	return s.bridge
}

// Addr returns the bound REST API address, nil before Start
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// startServer builds the route table for cfg and starts a server on it
func (s *Service) startServer(cfg *config.Config) (*server.Server, error) {
	rtr := router.NewRouter()
	srv := server.New(&cfg.Server, rtr)
	api.NewHandlers(s.cache, &cfg.Server, auth.NewGate(cfg.Auth), srv.Running).Register(rtr)

	if err := srv.Start(s.ctx); err != nil {
		return nil, err
	}

	for _, r := range rtr.Routes() {
		logger.L.Debug("route registered",
			zap.String("method", r.Method),
			zap.String("path", r.Path),
		)
	}
	return srv, nil
}

// seedRoster replaces the cache contents with the roster stored in Redis
func (s *Service) seedRoster(ctx context.Context) error {
	players, err := s.redisClient.LoadRoster(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed player roster: %w", err)
	}
	s.bridge.Seed(players)
	return nil
}

// watchEvents follows the host event channel until ctx is done. Every subscription,
// the first and each one after a lost connection, is confirmed before the roster is
// re-seeded, so no event falls between the roster load and the feed. The outcome of
// the first subscribe and seed round is sent on seeded.
func (s *Service) watchEvents(ctx context.Context, seeded chan<- error) {
	var once sync.Once
	report := func(err error) {
		once.Do(func() { seeded <- err })
	}

	onSubscribed := func() error {
		err := s.seedRoster(ctx)
		if err == nil {
			report(nil)
		}
		return err
	}
	apply := func(ev events.Event) {
		if err := s.bridge.Apply(ev); err != nil {
			logger.L.Warn("dropping host event", zap.Error(err))
		}
	}

	for {
		err := retry.Do(ctx, redisRetry, func() error {
			err := s.redisClient.WatchPlayerEvents(ctx, onSubscribed, apply)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}, func(attempt int, err error) {
			logger.L.Warn("player event subscription failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		})
		if ctx.Err() != nil {
			report(ctx.Err())
			return
		}
		if err != nil {
			metrics.IncEventError("subscribe")
			logger.L.Error("player event subscription lost", zap.Error(err))
			report(err)
		}
	}
}

// startMetricsServer starts the Prometheus metrics HTTP server when a port is configured
func (s *Service) startMetricsServer() error {
	port := s.cfg.Server.MetricsPort
	if port == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	listener, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	s.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.metricsServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.L.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.L.Info("metrics server started", zap.String("addr", listener.Addr().String()))
	return nil
}

func (s *Service) stopMetricsServer() {
	if s.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.metricsServer.Shutdown(ctx); err != nil {
		logger.L.Warn("failed to shutdown metrics server", zap.Error(err))
	}
	s.metricsServer = nil
}

// apiURL formats the REST API base URL for the startup log
func apiURL(addr net.Addr, prefix string) string {
	host := addr.String()
	if strings.HasPrefix(host, "0.0.0.0:") {
		host = "localhost" + strings.TrimPrefix(host, "0.0.0.0")
	}
	return "http://" + host + prefix
}
