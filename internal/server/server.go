package server

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/arcade-scan/internal/catalog"
	"github.com/zombor/arcade-scan/internal/scan"
	"github.com/zombor/arcade-scan/internal/scanning"
)

// StatusSource reports the current scan session. *scan.Scanner implements it.
type StatusSource interface {
	Status() (scan.Status, bool)
}

// Catalog is the catalog management the server exposes. *catalog.Service implements it.
type Catalog interface {
	AddItem(category scanning.Category, barcode, name string) (*catalog.Item, error)
	ListItems(category scanning.Category) ([]*catalog.Item, error)
	DeleteItem(category scanning.Category, barcode string) error
}

// Server serves scan status, catalog management and metrics over HTTP
type Server struct {
	status    StatusSource
	catalog   Catalog
	metrics   http.Handler
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(status StatusSource, cat Catalog, gatherer prometheus.Gatherer, basicAuth BasicAuth) *Server {
	return NewServerWithMux(status, cat, gatherer, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(status StatusSource, cat Catalog, gatherer prometheus.Gatherer, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		status:    status,
		catalog:   cat,
		metrics:   promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Arcade Scan"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.requireAuth(s.metrics.ServeHTTP))

	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleSession))

	if s.catalog != nil {
		s.mux.HandleFunc("DELETE /api/catalog/{category}/{barcode}", s.requireAuth(s.handleDeleteItem))
		s.mux.HandleFunc("GET /api/catalog/{category}", s.requireAuth(s.handleListItems))
		s.mux.HandleFunc("POST /api/catalog/{category}", s.requireAuth(s.handleAddItem))
	}
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting status server", "address", addr)
	return http.ListenAndServe(addr, s.corsMiddleware(s.mux.ServeHTTP))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
