package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pavemetrics/overwatch/internal/alerts"
	"github.com/pavemetrics/overwatch/internal/outbox"
	"github.com/pavemetrics/overwatch/pkg/models"
)

// Health check
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "overwatch",
		"time":    time.Now().UTC(),
	})
}

// Analytics handlers

func (s *Server) getAnalytics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.analytics.Snapshot(r.Context()))
}

func (s *Server) refreshAnalytics(w http.ResponseWriter, r *http.Request) {
	s.analytics.Invalidate()
	respondJSON(w, http.StatusOK, s.analytics.Snapshot(r.Context()))
}

// Upstream view handlers

func (s *Server) getFleet(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.fleet.FetchSnapshot(r.Context()))
}

func (s *Server) getSensors(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.sensors.Current(r.Context()))
}

func (s *Server) getWeather(w http.ResponseWriter, r *http.Request) {
	lat, lon := s.cfg.Site.Latitude, s.cfg.Site.Longitude
	if v := r.URL.Query().Get("lat"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			lat = parsed
		}
	}
	if v := r.URL.Query().Get("lon"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			lon = parsed
		}
	}

	respondJSON(w, http.StatusOK, s.weather.Current(r.Context(), lat, lon))
}

// Outbox handlers

func (s *Server) listOutbox(w http.ResponseWriter, r *http.Request) {
	ops, err := s.queue.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ops == nil {
		ops = []models.QueuedOperation{}
	}
	respondJSON(w, http.StatusOK, ops)
}

func (s *Server) enqueueOperation(w http.ResponseWriter, r *http.Request) {
	var pending models.PendingOperation
	if err := json.NewDecoder(r.Body).Decode(&pending); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch pending.Method {
	case models.MethodPost, models.MethodPut, models.MethodDelete:
	default:
		respondError(w, http.StatusBadRequest, "Method must be POST, PUT, or DELETE")
		return
	}
	if pending.Target == "" {
		respondError(w, http.StatusBadRequest, "Target is required")
		return
	}

	queued, err := s.queue.Enqueue(r.Context(), pending)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, queued)
}

func (s *Server) drainOutbox(w http.ResponseWriter, r *http.Request) {
	result, err := s.queue.Drain(r.Context())
	if err != nil {
		var storageErr *outbox.StorageError
		if errors.As(err, &storageErr) {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Alert handlers

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	active, err := s.alerts.Active()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if active == nil {
		active = []models.Alert{}
	}
	respondJSON(w, http.StatusOK, active)
}

func (s *Server) alertHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.alerts.All()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if history == nil {
		history = []models.Alert{}
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.alerts.Acknowledge(id); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Alert not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

// Websocket handler

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleFleetWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newWSClient(s.hub, conn)
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
