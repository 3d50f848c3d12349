// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/eldlog/internal/domain/coordinator"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/render"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	TimelineDependencies
	EventDependencies
	ReportDependencies
	Subscribe(fn func(render.Model)) (cancel func())
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	timelineHandler *TimelineHandler
	eventsHandler   *EventsHandler
	reportHandler   *ReportHandler
	streamHandler   *StreamHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		timelineHandler: NewTimelineHandler(deps),
		eventsHandler:   NewEventsHandler(deps),
		reportHandler:   NewReportHandler(deps),
		streamHandler:   NewStreamHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/timeline", MetricsMiddleware(s.timelineHandler.HandleGetTimeline, "timeline"))
	mux.HandleFunc("/refresh", MetricsMiddleware(s.timelineHandler.HandlePostRefresh, "refresh"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/operations/", MetricsMiddleware(s.eventsHandler.HandleGetOperation, "operations"))
	mux.HandleFunc("/daily-log", MetricsMiddleware(s.reportHandler.HandleGetDailyLog, "daily_log"))
	mux.HandleFunc("/report", MetricsMiddleware(s.reportHandler.HandleGetDocument, "report"))
	mux.HandleFunc("/report.png", MetricsMiddleware(s.reportHandler.HandleGetRaster, "report_png"))
	// the stream hijacks the connection, so it bypasses the status-capturing middleware
	mux.HandleFunc("/ws/timeline", s.streamHandler.HandleStream)
}

// eventRequest is the body of POST /events: a status code or label and a
// local wall-clock or zoned time.
type eventRequest struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func (e eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.Status) == "":
		return errors.New("missing status")
	case strings.TrimSpace(e.Time) == "":
		return errors.New("missing time")
	}
	return nil
}

type operationResponse struct {
	ID        string     `json:"operation_id"`
	State     string     `json:"state"`
	Status    string     `json:"status"`
	Time      time.Time  `json:"time"`
	TripID    string     `json:"trip,omitempty"`
	RemoteID  string     `json:"remote_id,omitempty"`
	Error     string     `json:"error,omitempty"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

func newOperationResponse(op *coordinator.Operation) operationResponse {
	sub := op.Submission()
	resp := operationResponse{
		ID:       op.ID(),
		State:    op.State().String(),
		Status:   sub.Status.String(),
		Time:     sub.Time,
		TripID:   sub.TripID,
		RemoteID: op.RemoteID(),
	}
	if err := op.Err(); err != nil {
		resp.Error = err.Error()
	}
	if at := op.SettledAt(); !at.IsZero() {
		resp.SettledAt = &at
	}
	return resp
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeKindError maps engine errors onto status codes.
func writeKindError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, coordinator.ErrDispatchRefused):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, coordinator.ErrOperationNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, model.ErrRemoteFetchFailure), errors.Is(err, model.ErrRemoteSubmitFailure):
		writeError(w, http.StatusBadGateway, "upstream", WrapKind(op, ErrUpstream, err))
	case errors.Is(err, coordinator.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}
