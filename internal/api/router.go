package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the chi router serving SPEC_FULL.md §6's /workflow/*
// surface, with request logging/recovery and a permissive CORS policy
// suitable for a dashboard served from a different origin.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Route("/workflow", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Route("/{thread_id}", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/stop", s.handleStop)
			r.Post("/reset", s.handleReset)
		})
	})
	r.Get("/workflows", s.handleList)

	return r
}
