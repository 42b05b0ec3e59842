package api

import (
	"cmp"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/the-deep/deeptree/internal/catalog"
	"github.com/the-deep/deeptree/internal/config"
	"github.com/the-deep/deeptree/internal/pipeline"
	"github.com/the-deep/deeptree/internal/platform"
	"github.com/the-deep/deeptree/internal/stats"
	"github.com/the-deep/deeptree/internal/store"
	"github.com/the-deep/deeptree/internal/tree"
)

// Server is the HTTP API server for deeptree.
type Server struct {
	router       chi.Router
	store        store.Store
	orchestrator *pipeline.Orchestrator
	catalog      *catalog.Catalog
	ops          *stats.OpStats
	metrics      *metrics
	validate     *validator.Validate
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. cat may be nil when no
// catalog directory is configured.
func NewServer(st store.Store, orch *pipeline.Orchestrator, cat *catalog.Catalog, ops *stats.OpStats, log *slog.Logger, cfg config.Config) *Server {
	if ops == nil {
		ops = stats.New(time.Hour)
	}
	s := &Server{
		store:        st,
		orchestrator: orch,
		catalog:      cat,
		ops:          ops,
		metrics:      newMetrics(),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(s.metrics.instrument)

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/stats/ops", s.handleOpStats)

		r.Route("/api/trees", func(r chi.Router) {
			r.Get("/", s.handleListTrees)
			r.Post("/", s.handleCreateTree)
			r.Route("/{treeID}", func(r chi.Router) {
				r.Get("/", s.handleGetTree)
				r.Delete("/", s.handleDeleteTree)
				r.Get("/options", s.handleOptions)
				r.Get("/selection", s.handleGetSelection)
				r.Put("/selection", s.handlePutSelection)
				r.Post("/toggle", s.handleToggle)
				r.Post("/nodes", s.handleAddNode)
				r.Patch("/nodes/{key}", s.handlePatchNode)
				r.Delete("/nodes", s.handleRemoveNode)
				r.Post("/reorder", s.handleReorder)
				r.Post("/push", s.handlePush)
			})
		})

		r.Post("/api/import", s.handleImport)
		r.Post("/api/import/batch", s.handleBatchImport)
		r.Post("/api/import/remote", s.handleRemoteImport)
		r.Get("/api/import/{jobID}/status", s.handleImportStatus)

		r.Get("/api/catalog", s.handleListCatalog)
		r.Get("/api/catalog/{name}", s.handleGetCatalog)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tree.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, platform.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, tree.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrPlatformDisabled),
		errors.Is(err, pipeline.ErrStopped):
		return http.StatusServiceUnavailable
	case platform.IsRetryable(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	jsonError(w, err.Error(), code)
}

// decode reads a JSON body into v and runs struct validation.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, cmp.Or(s.cfg.MaxUploadBytes, 1<<20))
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
