// Package api exposes the chunking pipeline over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/structify/rfpchunk/internal/chunking"
	"github.com/structify/rfpchunk/internal/config"
	"github.com/structify/rfpchunk/internal/llm"
	"github.com/structify/rfpchunk/internal/storage"
)

// Server is the HTTP API server for rfpchunk.
type Server struct {
	router   chi.Router
	pipeline *chunking.Pipeline
	store    *storage.Store
	llmStats *llm.Stats
	llmModel string
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(p *chunking.Pipeline, store *storage.Store, stats *llm.Stats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		pipeline: p,
		store:    store,
		llmStats: stats,
		llmModel: cfg.LLMModel,
		log:      log,
		cfg:      cfg,
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

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/documents", s.handleChunkDocument)
		r.Get("/api/documents/{docID}/chunks", s.handleGetChunks)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
