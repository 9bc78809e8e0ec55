package scan

import (
	"log/slog"
	"net/http"

	"github.com/zombor/catalog-ocr/internal/scanning"
)

const defaultMaxUploadBytes = 10 << 20 // 10MB

// Server handles HTTP requests for scans
type Server struct {
	service        *Service
	engines        map[string]scanning.Availability
	maxUploadBytes int64
	mux            *http.ServeMux
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithEngineReport exposes the startup probe results on the health endpoint.
func WithEngineReport(report map[string]scanning.Availability) ServerOption {
	return func(s *Server) { s.engines = report }
}

// WithMaxUploadBytes limits the size of uploaded files.
func WithMaxUploadBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, opts ...ServerOption) *Server {
	return NewServerWithMux(service, http.NewServeMux(), opts...)
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, mux *http.ServeMux, opts ...ServerOption) *Server {
	s := &Server{
		service:        service,
		engines:        map[string]scanning.Availability{},
		maxUploadBytes: defaultMaxUploadBytes,
		mux:            mux,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /api/scans/{id}/file", s.handleGetScanFile)
	s.mux.HandleFunc("GET /api/scans/{id}/export", s.handleExportScan)
	s.mux.HandleFunc("POST /api/scans/{id}/correct", s.handleCorrectScan)
	s.mux.HandleFunc("GET /api/scans/{id}", s.handleGetScan)
	s.mux.HandleFunc("DELETE /api/scans/{id}", s.handleDeleteScan)
	s.mux.HandleFunc("GET /api/scans", s.handleListScans)
	s.mux.HandleFunc("POST /api/scans", s.handleUploadScan)
}

// Handler returns the routed mux wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}
