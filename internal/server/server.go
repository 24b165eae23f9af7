// Package server provides the HTTP surface of posecam.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/posecam/internal/capture"
	"github.com/ayusman/posecam/internal/detector"
	"github.com/ayusman/posecam/internal/metrics"
)

// Defaults for Config fields left at zero.
const (
	DefaultStreamInterval    = 66 * time.Millisecond // ~15 FPS
	DefaultBroadcastInterval = 100 * time.Millisecond
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
)

// Pipeline is the part of the application the HTTP handlers depend on.
type Pipeline interface {
	// Landmarks runs the pose model on the latest frame.
	Landmarks(ctx context.Context) detector.Result
	// Snapshot returns a copy of the latest frame.
	Snapshot() (capture.Frame, bool)
	// FrameInfo describes the latest frame without copying it.
	FrameInfo() (seq uint64, capturedAt time.Time, ok bool)
	// Err is non-nil once capture has stopped with an error.
	Err() error
}

// Config holds the server configuration.
type Config struct {
	Pipeline Pipeline
	Metrics  *metrics.Metrics
	// StaticDir, if set, is served at "/".
	StaticDir string

	StreamInterval    time.Duration
	BroadcastInterval time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
}

func (c *Config) setDefaults() {
	if c.StreamInterval <= 0 {
		c.StreamInterval = DefaultStreamInterval
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = DefaultBroadcastInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Server represents the HTTP server for posecam.
type Server struct {
	config    Config
	mux       *http.ServeMux
	handler   http.Handler
	stream    *StreamHandler
	landmarks *LandmarksHandler
	start     time.Time
}

// New creates a new Server with the given configuration.
// Routes that need a pipeline are only registered when one is configured.
func New(config Config) *Server {
	config.setDefaults()

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = requestID(s.mux)
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	if s.config.Pipeline != nil {
		s.mux.HandleFunc("/get_landmarks", s.handleGetLandmarks)
		s.stream = NewStreamHandler(s.config.Pipeline, s.config.StreamInterval)
		s.mux.Handle("/api/stream", s.stream)

		s.landmarks = NewLandmarksHandler(s.config.Pipeline, s.config.BroadcastInterval, s.config.Metrics)
		s.mux.Handle("/api/landmarks", s.landmarks)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleGetLandmarks handles GET /get_landmarks. Every detection outcome,
// including failures, is a 200 with either landmarks or the -1 sentinel.
func (s *Server) handleGetLandmarks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := encodeLandmarks(s.config.Pipeline.Landmarks(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	code := http.StatusOK

	if p := s.config.Pipeline; p != nil {
		seq, capturedAt, ok := p.FrameInfo()
		response["frames"] = seq
		if ok {
			response["frame_age"] = time.Since(capturedAt).String()
		}

		if err := p.Err(); err != nil {
			response["status"] = "degraded"
			response["error"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, response)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	// Shutdown does not cancel request contexts, so long-lived streams are
	// ended explicitly.
	if s.stream != nil {
		srv.RegisterOnShutdown(s.stream.Stop)
	}

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.landmarks != nil {
		go s.landmarks.Run(bctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer done()

	slog.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
