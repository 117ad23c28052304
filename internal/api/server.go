// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/errors"
	"grimm.is/flowshape/internal/logging"
)

// ServerConfig holds HTTP server security configuration.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration // Body read limit
	WriteTimeout      time.Duration // Response timeout
	IdleTimeout       time.Duration // Keep-alive timeout
	MaxHeaderBytes    int           // Header size limit
	MaxBodyBytes      int64         // Request body size limit
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns secure default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
		MaxBodyBytes:      1 << 20, // 1MB; rule bodies are tiny
		ShutdownTimeout:   5 * time.Second,
	}
}

// ServerOptions wires the server to the running pipeline.
type ServerOptions struct {
	Config    *ServerConfig
	Rules     RuleService
	Metrics   MetricsSource
	Snapshots SnapshotSource
	History   HistorySource       // optional
	Hub       *engine.Hub         // optional; disables /ws/traffic when nil
	Gatherer  prometheus.Gatherer // optional; disables /metrics when nil
	Logger    *logging.Logger
}

// Server handles API requests.
type Server struct {
	cfg    *ServerConfig
	mux    *mux.Router
	hub    *engine.Hub
	logger *logging.Logger
}

// NewServer builds the router for opts.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Rules == nil || opts.Metrics == nil {
		return nil, errors.New(errors.KindValidation, "api server requires rules and metrics")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	s := &Server{
		cfg:    cfg,
		mux:    mux.NewRouter(),
		hub:    opts.Hub,
		logger: logger,
	}

	apiRouter := s.mux.PathPrefix("/api").Subrouter()
	NewRulesHandlers(opts.Rules).RegisterRoutes(apiRouter)
	NewMetricsHandlers(opts.Metrics, opts.Snapshots, opts.History).RegisterRoutes(apiRouter)

	if opts.Hub != nil {
		s.mux.Handle("/ws/traffic", newTrafficStream(opts.Hub, opts.Snapshots, logger))
	}
	if opts.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	s.mux.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, ErrNotFound)
	})
	return s, nil
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.maxBodyMiddleware(s.cfg.MaxBodyBytes)(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, errors.KindInternal, "api server")
		}
		return nil
	case <-ctx.Done():
	}

	// Websocket streams are hijacked and ignored by Shutdown.
	if s.hub != nil {
		s.hub.CloseAll()
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("API server shutdown incomplete", "error", err)
		return errors.Wrap(err, errors.KindTimeout, "api shutdown")
	}
	s.logger.Info("API server stopped")
	return nil
}

// loggingMiddleware logs all API requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" || strings.HasPrefix(r.URL.Path, "/ws/") {
			return
		}
		duration := time.Since(start).Round(time.Millisecond)
		switch {
		case wrapped.statusCode >= 500:
			s.logger.Error("request", "method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", duration)
		case wrapped.statusCode >= 400:
			s.logger.Warn("request", "method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", duration)
		default:
			s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", duration)
		}
	})
}

// maxBodyMiddleware limits the size of request bodies to prevent memory exhaustion.
func (s *Server) maxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes <= 0 || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Implement http.Hijacker for websocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijack not supported")
}
