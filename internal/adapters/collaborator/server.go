package collaborator

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/normalize"
	"github.com/okian/eldlog/internal/domain/status"
	"github.com/okian/eldlog/pkg/logger"
)

// Server exposes a Source over the collaborator's REST routes so the HTTP
// client can run against a local status log.
type Server struct {
	source   Source
	location *time.Location
	logger   logger.Logger
}

// NewServer serves source. Naive times in POST bodies are read in loc.
func NewServer(source Source, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{source: source, location: loc, logger: logger.Get().Named("collaborator-server")}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(statusLogsPath, s.handleStatusLogs)
	mux.HandleFunc(dailyReportPath, s.handleDailyReport)
	return mux
}

func (s *Server) handleStatusLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := s.source.ListStatusLogs(r.Context())
		if err != nil {
			writeCollaboratorError(w, http.StatusInternalServerError, err)
			return
		}
		writeCollaboratorJSON(w, http.StatusOK, records)
	case http.MethodPost:
		s.create(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeCollaboratorError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCollaboratorError(w, http.StatusBadRequest, err)
		return
	}
	st, ok := status.Match(req.Status)
	if !ok {
		writeCollaboratorError(w, http.StatusBadRequest, errors.New("invalid status"))
		return
	}
	at, err := normalize.ParseTimeString(req.Time, s.location)
	if err != nil {
		writeCollaboratorError(w, http.StatusBadRequest, errors.New("invalid time"))
		return
	}

	id, err := s.source.CreateStatusLog(r.Context(), model.Submission{
		OperationID: uuid.NewString(),
		Status:      st,
		Time:        at,
		TripID:      req.Trip,
		SubmittedAt: time.Now(),
	})
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, ErrRejected) {
			code = http.StatusBadRequest
		}
		s.logger.Debug(r.Context(), "status log refused", logger.Error(err))
		writeCollaboratorError(w, code, err)
		return
	}

	writeCollaboratorJSON(w, http.StatusCreated, model.RawRecord{
		ID:            model.Ident(id),
		Status:        status.ToWire(st),
		StatusDisplay: status.Label(st),
		Time:          model.TextTime(at.In(s.location).Format(submitTimeLayout)),
		Trip:          model.Ident(req.Trip),
	})
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeCollaboratorError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	rep, err := s.source.DailyReport(r.Context())
	if err != nil {
		writeCollaboratorError(w, http.StatusInternalServerError, err)
		return
	}
	writeCollaboratorJSON(w, http.StatusOK, rep)
}

func writeCollaboratorJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCollaboratorError(w http.ResponseWriter, code int, err error) {
	writeCollaboratorJSON(w, code, errorPayload{Error: err.Error()})
}
