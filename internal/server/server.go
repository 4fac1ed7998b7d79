// Package server provides the HTTP API for Kirameki.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lustra/kirameki/internal/config"
	"github.com/lustra/kirameki/internal/search"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// watchService is the part of the directory watcher the API manages.
type watchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Kirameki API.
type Server struct {
	service  *search.Service
	config   *config.ServerConfig
	logger   *zap.Logger
	imageDir string
	limiter  *rate.Limiter
	server   *http.Server

	storage *config.StorageConfig

	watch         watchService
	configPath    string
	watchConfig   *config.Config
	watchConfigMu sync.Mutex
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithImageDir sets the directory where uploaded item images are stored.
func WithImageDir(dir string) ServerOption {
	return func(s *Server) { s.imageDir = dir }
}

// WithStorageInfo lets the status endpoint report disk usage for the
// configured storage paths.
func WithStorageInfo(storage *config.StorageConfig) ServerOption {
	return func(s *Server) { s.storage = storage }
}

// WithWatch enables the watch-directory management endpoints. configPath and
// cfg, when set, let directory changes persist across restarts.
func WithWatch(w watchService, configPath string, cfg *config.Config) ServerOption {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
		s.watchConfig = cfg
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(service *search.Service, cfg *config.ServerConfig, logger *zap.Logger, opts ...ServerOption) *Server {
	s := &Server{
		service: service,
		config:  cfg,
		logger:  logger,
	}
	if cfg.SearchRateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SearchRateLimit), cfg.SearchRateBurst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.With(s.rateLimit).Post("/api/v1/search/visual", s.handleVisualSearch)

	r.Get("/api/v1/items", s.handleListItems)
	r.Post("/api/v1/items", s.handleCreateItem)
	r.Get("/api/v1/items/{id}", s.handleGetItem)
	r.Put("/api/v1/items/{id}", s.handleUpdateItem)
	r.Delete("/api/v1/items/{id}", s.handleDeleteItem)

	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)

	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// rateLimit rejects searches beyond the configured rate with 429. A nil
// limiter (rate 0) disables limiting.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.respondError(w, http.StatusTooManyRequests, "search rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
