// Package mockserver is an in-process implementation of the vector-search
// service's HTTP contract. It answers every endpoint the harness calls, using
// exhaustive search and a pluggable snapshot store, so scenarios can run
// without a real service.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dshills/vsbench/index"
	"github.com/dshills/vsbench/persistence"
)

// Server represents the mock service
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	config     ServerConfig
	store      persistence.Store

	mu      sync.RWMutex
	indices map[string]index.Index

	requests atomic.Int64
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Latency is added to every non-health request before it is handled
	Latency time.Duration `json:"latency" yaml:"latency"`
	// FailEvery makes every n-th non-health request fail with FailStatus
	FailEvery  int `json:"fail_every" yaml:"fail_every"`
	FailStatus int `json:"fail_status" yaml:"fail_status"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8685,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		FailStatus:      http.StatusServiceUnavailable,
	}
}

// NewServer creates a new mock server backed by store for saved indices
func NewServer(store persistence.Store, config ServerConfig) *Server {
	if config.FailStatus == 0 {
		config.FailStatus = http.StatusServiceUnavailable
	}

	s := &Server{
		config:  config,
		store:   store,
		indices: make(map[string]index.Index),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(loggingMiddleware)
	s.router.Use(jsonContentTypeMiddleware)
	s.router.Use(s.faultMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/list_indices", s.handleListIndices).Methods("GET")

	// Index lifecycle
	s.router.HandleFunc("/create_index", s.handleCreateIndex).Methods("POST")
	s.router.HandleFunc("/save_index", s.handleSaveIndex).Methods("POST")
	s.router.HandleFunc("/load_index", s.handleLoadIndex).Methods("POST")
	s.router.HandleFunc("/delete_index", s.handleDeleteIndex).Methods("POST")
	s.router.HandleFunc("/delete_index_from_disk", s.handleDeleteIndexFromDisk).Methods("POST")

	// Documents
	s.router.HandleFunc("/add_documents", s.handleAddDocuments).Methods("POST")
	s.router.HandleFunc("/delete_documents", s.handleDeleteDocuments).Methods("POST")
	s.router.HandleFunc("/get_document/{index}/{id:-?[0-9]+}", s.handleGetDocument).Methods("GET")

	s.router.HandleFunc("/search", s.handleSearch).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.WithFields(log.Fields{
		"addr":       addr,
		"latency":    s.config.Latency,
		"fail_every": s.config.FailEvery,
	}).Info("Starting mock vector search service")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware functions
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("Handled request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// faultMiddleware applies the configured latency and failure injection
func (s *Server) faultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if s.config.Latency > 0 {
			select {
			case <-time.After(s.config.Latency):
			case <-r.Context().Done():
				return
			}
		}

		n := s.requests.Add(1)
		if s.config.FailEvery > 0 && n%int64(s.config.FailEvery) == 0 {
			s.respondWithError(w, s.config.FailStatus, "Injected failure")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Error response helper
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

// Status response helper
func (s *Server) respondWithStatus(w http.ResponseWriter, message string) {
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": message})
}

// JSON response helper
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Error marshaling JSON"}`))
		return
	}

	w.WriteHeader(code)
	w.Write(response)
}
