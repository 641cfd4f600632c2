// Package server exposes the CU-CP's status and introspection HTTP
// surface.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/gnb/common/metrics"
	"github.com/your-org/gnb/nf/cucp/internal/processor"
)

// NGStatus is the NG-side state exposed on the status surface.
type NGStatus interface {
	AMFName() string
}

// Server is the CU-CP status HTTP server.
type Server struct {
	port       int
	processor  *processor.Processor
	ng         NGStatus
	router     *chi.Mux
	httpServer *http.Server
	logger     *zap.Logger
}

// New creates the server and wires its routes.
func New(port int, proc *processor.Processor, ng NGStatus, logger *zap.Logger) *Server {
	s := &Server{
		port:      port,
		processor: proc,
		ng:        ng,
		router:    chi.NewRouter(),
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/status", s.handleStatus)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		metrics.RecordHTTPRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).Seconds())
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ng.AMFName() == "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NG not established"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"amf_name":      s.ng.AMFName(),
		"connected_ues": s.processor.NofUEs(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// Start runs the server until Stop.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting status server", zap.Int("port", s.port))
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
