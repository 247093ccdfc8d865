// Package server provides the HTTP boundary of the relay: webhook dispatch,
// manual test triggers, and the liveness/diagnostic endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dativo-io/scribe/internal/activity"
	"github.com/dativo-io/scribe/internal/config"
	"github.com/dativo-io/scribe/internal/event"
	"github.com/dativo-io/scribe/internal/otel"
)

const defaultTimeout = 60 * time.Second

// PipelineRunner runs the reply pipeline for one classified event.
type PipelineRunner interface {
	Handle(ctx context.Context, ev event.Event) error
}

// Server holds the dispatcher's dependencies.
type Server struct {
	router    *chi.Mux
	pipeline  PipelineRunner
	cfg       *config.Config
	activity  *activity.Log
	startTime time.Time
}

// NewServer builds a Server.
func NewServer(cfg *config.Config, pipeline PipelineRunner, activityLog *activity.Log) *Server {
	return &Server{
		router:    chi.NewRouter(),
		pipeline:  pipeline,
		cfg:       cfg,
		activity:  activityLog,
		startTime: time.Now(),
	}
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultTimeout))
	r.Use(otel.Middleware())

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleRoot)
	r.Get("/test", s.handleTest)
	r.Get("/activity-log", s.handleActivityLog)

	r.Post("/webhook/deal-created", s.handleWebhook(event.RouteDealCreated))
	r.Post("/webhook/email-reply", s.handleWebhook(event.RouteEmailReply))

	r.Post("/test-deal", s.handleManualTrigger(event.RouteDealCreated))
	r.Post("/test-email-reply", s.handleManualTrigger(event.RouteEmailReply))

	return r
}
