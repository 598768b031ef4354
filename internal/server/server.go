package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tickwatch/tickwatch/internal/feed"
	"github.com/tickwatch/tickwatch/internal/logger"
	"github.com/tickwatch/tickwatch/internal/models"
)

// AlertReader serves the recent-alert query.
type AlertReader interface {
	RecentAlerts(limit int) ([]models.Alert, error)
}

// StatsSource exposes feed supervisor counters on the health payload.
type StatsSource interface {
	Stats() feed.Stats
}

// Server is the read-only HTTP surface plus the subscriber websocket.
type Server struct {
	hub    *Hub
	alerts AlertReader
	stats  StatsSource
	http   *http.Server
}

// New builds the server on addr. The hub must be running separately.
func New(addr string, hub *Hub, alerts AlertReader, stats StatsSource) *Server {
	s := &Server{hub: hub, alerts: alerts, stats: stats}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	router.HandleFunc("/ws", hub.ServeWS).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the listener until Shutdown.
func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type healthResponse struct {
	Status string     `json:"status"`
	Time   time.Time  `json:"time"`
	Feed   feed.Stats `json:"feed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Time: time.Now()}
	if s.stats != nil {
		resp.Feed = s.stats.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.RecentAlerts(100)
	if err != nil {
		logger.Error("Failed to read recent alerts: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read alerts"})
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}
