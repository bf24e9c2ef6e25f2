package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/monitor"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/notify"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/providers"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/scheduler"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
)

// UserHeader carries the authenticated user id set by the auth layer in front.
const UserHeader = "X-User-ID"

// Server provides the HTTP API over readings, alerts and syncs.
type Server struct {
	store     storage.Storage
	tracker   *monitor.ReadingTracker
	alerts    *monitor.AlertManager
	fanout    *notify.FanOut
	scheduler *scheduler.Scheduler
	mux       *http.ServeMux
	logger    *slog.Logger
}

// NewServer creates an API server.
func NewServer(store storage.Storage, tracker *monitor.ReadingTracker, alerts *monitor.AlertManager, fanout *notify.FanOut, sched *scheduler.Scheduler, logger *slog.Logger) *Server {
	s := &Server{
		store:     store,
		tracker:   tracker,
		alerts:    alerts,
		fanout:    fanout,
		scheduler: sched,
		mux:       http.NewServeMux(),
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/readings", s.handleListReadings)
	s.mux.HandleFunc("POST /api/v1/readings", s.handleAddReading)
	s.mux.HandleFunc("GET /api/v1/alerts", s.handleListAlerts)
	s.mux.HandleFunc("GET /api/v1/alerts/{id}", s.handleGetAlert)
	s.mux.HandleFunc("POST /api/v1/alerts/{id}/ack", s.handleAckAlert)
	s.mux.HandleFunc("POST /api/v1/alerts/{id}/resolve", s.handleResolveAlert)
	s.mux.HandleFunc("POST /api/v1/sync/{provider}", s.handleSync)
	s.mux.HandleFunc("GET /api/v1/summaries", s.handleSummaries)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	owner := ownerParam(r)
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	readings, err := s.store.FindReadings(ctx, model.ReadingFilter{
		OwnerID: owner,
		Start:   time.Now().Add(-time.Duration(hours) * time.Hour),
	})
	if err != nil {
		s.fail(w, "find readings", err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

type addReadingRequest struct {
	Value     int         `json:"value"`
	Trend     model.Trend `json:"trend"`
	Timestamp *time.Time  `json:"timestamp"`
}

type addReadingResponse struct {
	Reading *model.Reading `json:"reading"`
	Alert   *model.Alert   `json:"alert,omitempty"`
}

func (s *Server) handleAddReading(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req addReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	at := time.Now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	reading, alert, err := s.tracker.AddManual(ctx, actor, req.Value, req.Trend, at)
	if err != nil && reading == nil {
		s.fail(w, "add reading", err)
		return
	}
	if err != nil {
		s.logger.Error("glucose alert check failed", "owner", actor, "error", err)
	}
	writeJSON(w, http.StatusCreated, addReadingResponse{Reading: reading, Alert: alert})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	owner := ownerParam(r)
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	filter := model.AlertFilter{
		OwnerID: owner,
		Type:    model.AlertType(r.URL.Query().Get("type")),
	}
	for _, st := range r.URL.Query()["status"] {
		filter.Statuses = append(filter.Statuses, model.AlertStatus(st))
	}

	list, err := s.alerts.List(ctx, filter)
	if err != nil {
		s.fail(w, "list alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	alert, err := s.alerts.Get(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, "get alert", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type ackRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req ackRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	alert, err := s.fanout.Acknowledge(ctx, r.PathValue("id"), actor, req.Note)
	if err != nil {
		s.fail(w, "acknowledge alert", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	alert, err := s.fanout.Resolve(ctx, r.PathValue("id"), actor)
	if err != nil {
		s.fail(w, "resolve alert", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	owner := ownerParam(r)
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	res, err := s.scheduler.SyncOwner(ctx, model.ProviderKind(r.PathValue("provider")), owner)
	if err != nil {
		s.fail(w, "manual sync", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	owner := ownerParam(r)
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	day := time.Now().UTC().AddDate(0, 0, -1)
	if v := r.URL.Query().Get("day"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = d
	}
	start := day.Truncate(24 * time.Hour)

	sums, err := s.store.ListDailySummaries(ctx, owner, start, start.Add(24*time.Hour))
	if err != nil {
		s.fail(w, "list summaries", err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

// ownerParam returns the owner query parameter, defaulting to the caller.
func ownerParam(r *http.Request) string {
	if owner := r.URL.Query().Get("owner"); owner != "" {
		return owner
	}
	return r.Header.Get(UserHeader)
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get(UserHeader)
	if actor == "" {
		writeError(w, http.StatusUnauthorized, "missing "+UserHeader)
		return "", false
	}
	return actor, true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op, "error", err)
	} else {
		s.logger.Debug(op, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		validation *model.ValidationError
		auth       *providers.AuthError
		expired    *providers.SessionExpiredError
		network    *providers.NetworkError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, providers.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, notify.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, notify.ErrAlertClosed),
		errors.Is(err, scheduler.ErrSyncInProgress),
		errors.Is(err, monitor.ErrDuplicateReading),
		errors.Is(err, providers.ErrNotConnected):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &auth), errors.As(err, &expired):
		return http.StatusUnauthorized
	case errors.As(err, &network):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
