// Package server implements the preview server: it serves a site directory
// and activates diagrams in every HTML page on the way out.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docdiagram/internal/config"
	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/metrics"
	smw "git.home.luguber.info/inful/docdiagram/internal/server/middleware"
)

// Options configures a Server.
type Options struct {
	// Dir is the site directory to serve.
	Dir       string
	Activator *diagram.Activator
	// Registry exposes metrics on the metrics path when non-nil.
	Registry    *prometheus.Registry
	Recorder    metrics.Recorder
	Logger      *slog.Logger
	WaitTimeout time.Duration
}

// Server serves a site directory with diagram activation.
type Server struct {
	cfg          config.ServerConfig
	opts         Options
	errorAdapter *errors.HTTPErrorAdapter
	httpServer   *http.Server
	addr         net.Addr
}

// New constructs a preview server.
func New(cfg config.ServerConfig, opts Options) (*Server, error) {
	if opts.Activator == nil {
		return nil, errors.InternalError("preview server requires an activator").Build()
	}
	info, err := os.Stat(opts.Dir)
	if err != nil || !info.IsDir() {
		return nil, errors.NotFoundError("site directory not found").
			WithContext("path", opts.Dir).
			Build()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = config.DefaultWaitTimeout
	}
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = config.DefaultMaxBufferBytes
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = config.DefaultMetricsPath
	}
	return &Server{
		cfg:          cfg,
		opts:         opts,
		errorAdapter: errors.NewHTTPErrorAdapter(opts.Logger),
	}, nil
}

// Handler returns the complete request handler.
func (s *Server) Handler() http.Handler {
	act := &activation{
		activator:   s.opts.Activator,
		adapter:     s.errorAdapter,
		logger:      s.opts.Logger,
		recorder:    s.opts.Recorder,
		maxSize:     s.cfg.MaxBufferBytes,
		waitTimeout: s.opts.WaitTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if s.opts.Registry != nil {
		mux.Handle(s.cfg.MetricsPath, metrics.HTTPHandler(s.opts.Registry))
	}
	mux.Handle("/", act.middleware(http.FileServer(http.Dir(s.opts.Dir))))

	return smw.Chain(s.opts.Logger, s.errorAdapter)(mux)
}

// Start binds the configured port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to bind preview port").
			WithContext("port", s.cfg.Port).
			Build()
	}
	return s.StartWithListener(ln)
}

// StartWithListener serves on an already bound listener.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.addr = ln.Addr()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.opts.Logger.Error("Preview server error", slog.String("error", err.Error()))
		}
	}()
	s.opts.Logger.Info("Preview server started",
		slog.String("addr", ln.Addr().String()),
		slog.String("dir", s.opts.Dir))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "preview server shutdown").Build()
	}
	return nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}
