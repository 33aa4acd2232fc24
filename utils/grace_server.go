package utils

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = defaultReadTimeout
	defaultDrainTimeout = 30 * time.Second
)

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

// Server serves HTTP until SIGINT, SIGTERM or Stop, then drains in-flight requests and
// runs the shutdown hooks in reverse registration order.
type Server struct {
	srv          *http.Server
	logger       *zap.Logger
	drainTimeout time.Duration

	mu    sync.Mutex
	hooks []shutdownHook

	stop     chan struct{}
	stopOnce sync.Once
}

// NewServer wraps handler with the default timeouts. A nil logger falls back to L().
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = L()
	}
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
		},
		logger:       logger,
		drainTimeout: defaultDrainTimeout,
		stop:         make(chan struct{}),
	}
}

// OnShutdown registers fn to run after the listener has drained. Hooks registered later
// run first, so dependents stop before what they depend on.
func (s *Server) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	s.hooks = append(s.hooks, shutdownHook{name: name, fn: fn})
	s.mu.Unlock()
}

// Stop triggers the same shutdown a signal would.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// ListenAndServe listens on the configured address and blocks until shutdown finished.
func (s *Server) ListenAndServe() error {
	addr := s.srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve blocks on ln. It returns nil after a clean shutdown, or the listener error when
// serving failed on its own; the hooks run in both cases.
func (s *Server) Serve(ln net.Listener) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigs)

	served := make(chan error, 1)
	go func() { served <- s.srv.Serve(ln) }()

	var serveErr error
	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
			s.logger.Error("http server stopped", zap.Error(err))
		}
	case sig := <-sigs:
		s.logger.Info("shutting down http server", zap.String("signal", sig.String()))
	case <-s.stop:
		s.logger.Info("shutting down http server", zap.String("signal", "stop"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if serveErr == nil {
		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown", zap.Error(err))
		}
	}
	s.runHooks(ctx)
	return serveErr
}

func (s *Server) runHooks(ctx context.Context) {
	s.mu.Lock()
	hooks := append([]shutdownHook(nil), s.hooks...)
	s.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			s.logger.Warn("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
			continue
		}
		s.logger.Debug("shutdown hook done", zap.String("hook", h.name))
	}
}
