// Package api serves the query service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/observability"
	"wooswap-indexer/internal/query"
	"wooswap-indexer/internal/storage"
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options contains configuration for creating a Server.
type Options struct {
	Query  *query.Service
	Health Pinger // optional
	Logger *logrus.Entry
}

// Server exposes the leaderboard queries under /api/v1.
type Server struct {
	query  *query.Service
	health Pinger
	router *mux.Router
	logger *logrus.Entry
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a server and registers its routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "api")
	}
	s := &Server{
		query:  opts.Query,
		health: opts.Health,
		router: mux.NewRouter(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", observability.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Users
	api.HandleFunc("/users/top", s.handleTopUsers).Methods("GET")
	api.HandleFunc("/users/{address}", s.handleUserStats).Methods("GET")
	api.HandleFunc("/users/{address}/events", s.handleUserEvents).Methods("GET")
	api.HandleFunc("/users/{address}/volume", s.handleVolumeHistory).Methods("GET")

	// Leaderboards
	api.HandleFunc("/volume/daily/{date}", s.handleDailyVolume).Methods("GET")
	api.HandleFunc("/leaderboard/affection", s.handleTopByAffection).Methods("GET")
	api.HandleFunc("/leaderboard/breakups", s.handleHallOfShame).Methods("GET")

	api.HandleFunc("/tokens/{tokenId}/affection", s.handleTokenAffection).Methods("GET")
	api.HandleFunc("/protocol/stats", s.handleProtocolStats).Methods("GET")
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTopUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limit(w, r)
	if !ok {
		return
	}
	rows, err := s.query.TopUsers(r.Context(), limit)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.query.UserStats(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limit(w, r)
	if !ok {
		return
	}
	events, err := s.query.UserEvents(r.Context(), mux.Vars(r)["address"], limit)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	out := make([]eventView, 0, len(events))
	for _, e := range events {
		v, err := newEventView(e)
		if err != nil {
			s.writeQueryError(w, err)
			return
		}
		out = append(out, v)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVolumeHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	points, err := s.query.VolumeHistory(r.Context(), mux.Vars(r)["address"], q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleDailyVolume(w http.ResponseWriter, r *http.Request) {
	volumes, err := s.query.DailyVolume(r.Context(), mux.Vars(r)["date"])
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, volumes)
}

func (s *Server) handleTopByAffection(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limit(w, r)
	if !ok {
		return
	}
	entries, err := s.query.TopByAffection(r.Context(), limit)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHallOfShame(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limit(w, r)
	if !ok {
		return
	}
	entries, err := s.query.HallOfShame(r.Context(), limit)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTokenAffection(w http.ResponseWriter, r *http.Request) {
	rec, err := s.query.TokenAffection(r.Context(), mux.Vars(r)["tokenId"])
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleProtocolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.query.ProtocolStats(r.Context())
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// limit parses the optional limit parameter. Out of range values are
// clamped by the query service; non-numeric values are rejected.
func (s *Server) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return query.DefaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "limit must be an integer")
		return 0, false
	}
	return n, true
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Debug("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, query.ErrNotConfigured):
		s.writeError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.WithError(err).Error("Query failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
