package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/liaoxianfu/ai-agent/internal/httplog"
	"github.com/liaoxianfu/ai-agent/internal/logging"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Address           string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	// HelloDelay is slept by the demo route before answering.
	HelloDelay time.Duration
	// RequestFormatter adds structured HTTP fields to the access log. Defaults to none.
	RequestFormatter httplog.RequestFormatter
}

// Server is the HTTP service. Its logs go through the logging pipeline.
type Server struct {
	logger  *zap.Logger
	options Options
	srv     *http.Server
}

// New builds the server. The access log uses the http.access component and
// errors of net/http go to the http.server component.
func New(p *logging.Pipeline, opts Options) *Server {
	if opts.RequestFormatter == nil {
		opts.RequestFormatter = httplog.NoopFormatter
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		logger:  p.Logger(),
		options: opts,
	}

	requestLogger := httplog.NewHandler(
		httplog.WithLogger(p.Component(logging.ComponentHTTPAccess)),
		httplog.WithRequestFormatter(opts.RequestFormatter),
	)

	s.srv = &http.Server{
		Addr:              opts.Address,
		Handler:           requestLogger(NewRouter(opts.HelloDelay)),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		ErrorLog:          p.StdLogger(logging.ComponentHTTPServer),
	}

	return s
}

// Handler returns the router wrapped in the request logging middleware.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.options.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.options.Address, err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts the server
// down gracefully. ln is closed when Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting up...", zap.Stringer("address", ln.Addr()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}

	return nil
}
