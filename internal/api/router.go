// Package api exposes the aggregation layer over HTTP: the cached
// analytics snapshot, raw upstream views, the durable outbox, alert
// acknowledgement, and a websocket feed of live fleet updates.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pavemetrics/overwatch/internal/alerts"
	"github.com/pavemetrics/overwatch/internal/analytics"
	"github.com/pavemetrics/overwatch/internal/config"
	"github.com/pavemetrics/overwatch/internal/outbox"
)

// Server represents the API server
type Server struct {
	router    chi.Router
	cfg       *config.Config
	queue     *outbox.Queue
	fleet     analytics.FleetSource
	sensors   analytics.SensorSource
	weather   analytics.WeatherSource
	analytics *analytics.Service
	alerts    *alerts.Store
	hub       *Hub
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, queue *outbox.Queue, fleetSrc analytics.FleetSource,
	sensorSrc analytics.SensorSource, weatherSrc analytics.WeatherSource,
	analyticsSvc *analytics.Service, alertStore *alerts.Store, hub *Hub) *Server {

	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		queue:     queue,
		fleet:     fleetSrc,
		sensors:   sensorSrc,
		weather:   weatherSrc,
		analytics: analyticsSvc,
		alerts:    alertStore,
		hub:       hub,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	s.router.Get("/health", s.healthCheck)

	// Live fleet feed; auth is not applied here, browsers can't set
	// headers on websocket upgrades.
	s.router.Get("/ws/fleet", s.handleFleetWS)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Server.JWTSecret != "" {
			r.Use(AuthMiddleware(s.cfg.Server.JWTSecret))
		}

		r.Get("/analytics", s.getAnalytics)
		r.Post("/analytics/refresh", s.refreshAnalytics)

		r.Get("/fleet", s.getFleet)
		r.Get("/sensors", s.getSensors)
		r.Get("/weather", s.getWeather)

		r.Route("/outbox", func(r chi.Router) {
			r.Get("/", s.listOutbox)
			r.Post("/", s.enqueueOperation)
			r.Post("/drain", s.drainOutbox)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.listAlerts)
			r.Get("/history", s.alertHistory)
			r.Post("/{id}/acknowledge", s.acknowledgeAlert)
		})
	})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}
