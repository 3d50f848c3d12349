// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/eldlog/internal/domain/coordinator"
)

// EventDependencies defines the interface for status change submission.
type EventDependencies interface {
	Submit(ctx context.Context, rawStatus, rawTime string) (*coordinator.Operation, error)
	Operation(ctx context.Context, id string) (*coordinator.Operation, error)
}

// EventsHandler handles status change requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests. The change is applied
// optimistically and answered with 202 and its operation id.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	operation, err := h.deps.Submit(r.Context(), req.Status, req.Time)
	if err != nil {
		writeKindError(w, op, err)
		return
	}
	w.Header().Set("Location", "/operations/"+operation.ID())
	writeJSON(w, http.StatusAccepted, newOperationResponse(operation))
}

// HandleGetOperation handles GET /operations/{id} requests.
func (h *EventsHandler) HandleGetOperation(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_operation"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/operations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	operation, err := h.deps.Operation(r.Context(), id)
	if err != nil {
		writeKindError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newOperationResponse(operation))
}
