package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/server/endpoint"
	"github.com/kbukum/audioscribe/server/middleware"
)

// Server is the HTTP server: Gin mounted on a ServeMux, wrapped by the
// middleware stack and h2c.
type Server struct {
	httpServer *http.Server
	h2         *http2.Server
	engine     *gin.Engine
	mux        *http.ServeMux
	config     Config
	log        *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	onStop   []func()
}

// New creates a Server. No middleware is applied yet; call ApplyDefaults on
// the config first if needed.
func New(cfg Config, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	mux := http.NewServeMux()
	mux.Handle("/", engine)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          seconds(cfg.IdleTimeout),
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           h2c.NewHandler(mux, h2s),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       seconds(cfg.ReadTimeout),
			WriteTimeout:      seconds(cfg.WriteTimeout),
			IdleTimeout:       seconds(cfg.IdleTimeout),
		},
		h2:     h2s,
		engine: engine,
		mux:    mux,
		config: cfg,
		log:    logger.OrDefault(log).WithComponent("server"),
	}
}

// GinEngine returns the underlying Gin engine for route registration.
func (s *Server) GinEngine() *gin.Engine {
	return s.engine
}

// Handler returns the fully wrapped handler, for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Handle mounts an http.Handler at the given pattern on the root ServeMux.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
	s.log.Debug("handler mounted", logger.Fields("pattern", pattern))
}

// OnStop registers fn to run during Stop after the listener is closed.
// Hijacked WebSocket connections are not tracked by http.Server, so the
// routes that own them close them here.
func (s *Server) OnStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStop = append(s.onStop, fn)
}

// Start binds the port and begins serving. It returns once the listener is
// bound; serving continues in a goroutine. With a TLS key pair configured the
// listener terminates TLS and negotiates HTTP/2 via ALPN; otherwise HTTP/2
// is served in cleartext.
func (s *Server) Start(_ context.Context) error {
	tlsCfg, err := s.config.TLS.Build()
	if err != nil {
		return fmt.Errorf("server tls: %w", err)
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	scheme := "http"
	if tlsCfg != nil {
		s.httpServer.TLSConfig = tlsCfg
		if err := http2.ConfigureServer(s.httpServer, s.h2); err != nil {
			_ = listener.Close()
			return fmt.Errorf("server http2: %w", err)
		}
		listener = tls.NewListener(listener, s.httpServer.TLSConfig)
		scheme = "https"
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", listener.Addr().String(), "scheme", scheme))
	return nil
}

// Stop stops accepting, waits up to five seconds for in-flight requests,
// then runs the OnStop callbacks.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	s.mu.Lock()
	callbacks := s.onStop
	s.onStop = nil
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}

	if err != nil {
		s.log.Error("server shutdown error", logger.Fields(logger.FieldError, err.Error()))
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("HTTP server shut down")
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// ApplyMiddleware wraps the mux with the standard stack: recovery,
// request ID, CORS, body size limit and request logging.
func (s *Server) ApplyMiddleware() {
	stack := middleware.Chain(
		middleware.Recovery(s.log),
		middleware.RequestID(),
		middleware.CORS(&s.config.CORS),
		middleware.BodySizeLimit(s.config.MaxBodySize),
		middleware.RequestLogger(s.log.WithComponent("http")),
	)
	s.httpServer.Handler = h2c.NewHandler(stack(s.mux), s.h2)
}

// RegisterDefaultEndpoints registers the probe and info endpoints.
func (s *Server) RegisterDefaultEndpoints(serviceName string, checker endpoint.HealthChecker, stats endpoint.PoolStats) {
	s.engine.GET("/health", endpoint.Health(serviceName, checker))
	s.engine.GET("/ready", endpoint.Readiness(serviceName, checker))
	s.engine.GET("/alive", endpoint.Liveness(serviceName))
	s.engine.GET("/info", endpoint.Info(serviceName))
	s.engine.GET("/version", endpoint.Version())
	s.engine.GET("/metrics", endpoint.Metrics(stats))
}

// ApplyDefaults applies the middleware stack and registers default endpoints.
func (s *Server) ApplyDefaults(serviceName string, checker endpoint.HealthChecker, stats endpoint.PoolStats) {
	s.ApplyMiddleware()
	s.RegisterDefaultEndpoints(serviceName, checker, stats)
}
