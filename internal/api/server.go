package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/2refocus/dogs-ai-sub000/internal/cache"
	"github.com/2refocus/dogs-ai-sub000/internal/config"
	"github.com/2refocus/dogs-ai-sub000/internal/generate"
	"github.com/2refocus/dogs-ai-sub000/internal/middleware"
	"github.com/2refocus/dogs-ai-sub000/internal/quota"
	"github.com/2refocus/dogs-ai-sub000/internal/storage"
	"github.com/2refocus/dogs-ai-sub000/internal/store"
	"github.com/2refocus/dogs-ai-sub000/internal/stream"
)

type Server struct {
	DB        *store.DB
	Cfg       *config.Config
	Inference generate.Inference
	Objects   *storage.Store
	Cache     *cache.Redis
	Quota     *quota.Counter
	Asynq     *asynq.Client
	Events    generate.Events    // publisher for poll-loop transitions
	Stream    *stream.Subscriber // SSE side
	GenOpts   generate.Options

	jwks   *keyfunc.JWKS
	secret string
}

func NewServer(db *store.DB, cfg *config.Config, inf generate.Inference, objects *storage.Store,
	cacheR *cache.Redis, q *quota.Counter, asynqClient *asynq.Client,
	events generate.Events, sub *stream.Subscriber, jwks *keyfunc.JWKS) *Server {
	return &Server{
		DB: db, Cfg: cfg, Inference: inf, Objects: objects, Cache: cacheR, Quota: q,
		Asynq: asynqClient, Events: events, Stream: sub,
		jwks: jwks, secret: cfg.SupabaseJWTSecret,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Get("/health/ready", s.healthReady)

	r.Route("/api", func(r chi.Router) {
		// Public routes: auth optional, guests welcome.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(s.secret, s.jwks, s.DB))
			r.Use(middleware.RateLimitByIP(60))
			r.Post("/generate", s.generatePortrait)
			r.Get("/gallery", s.listGallery)
			r.Get("/pipelines", s.listPipelines)
			r.Get("/predictions/{id}", s.getPrediction)
			r.Get("/predictions/{id}/events", s.predictionEvents)
		})
		// Authenticated routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.secret, s.jwks, s.DB))
			r.Use(middleware.RateLimit(120))
			r.Get("/history", s.listHistory)
			r.Delete("/portraits/{id}", s.deletePortrait)
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(s.DB))
				r.Get("/models", s.adminListModels)
				r.Put("/models", s.adminPutModel)
				r.Delete("/models/{mode}", s.adminDeleteModel)
				r.Post("/cleanup", s.adminCleanup)
				r.Post("/cleanup-orphans", s.adminCleanupOrphans)
				r.Post("/migrate-urls", s.adminMigrateURLs)
			})
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) healthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.DB.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	// Redis outage degrades (no cache, quota fails open) but does not make
	// the service unready.
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "redis": s.Cache.Ping(ctx) == nil})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": msg})
}
