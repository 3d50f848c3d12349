package api

import (
	"context"
	"net/http"

	"github.com/okian/eldlog/internal/domain/render"
)

// TimelineDependencies exposes the rendered timeline.
type TimelineDependencies interface {
	Timeline(ctx context.Context) render.Model
	Refresh(ctx context.Context) error
}

// TimelineHandler serves the render model.
type TimelineHandler struct {
	deps TimelineDependencies
}

// NewTimelineHandler creates a new timeline handler.
func NewTimelineHandler(deps TimelineDependencies) *TimelineHandler {
	return &TimelineHandler{deps: deps}
}

// HandleGetTimeline handles GET /timeline requests.
func (h *TimelineHandler) HandleGetTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Timeline(r.Context()))
}

// HandlePostRefresh handles POST /refresh requests. A failed fetch answers
// 502; the timeline then keeps its last known good state, marked stale.
func (h *TimelineHandler) HandlePostRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.Refresh(r.Context()); err != nil {
		writeKindError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Timeline(r.Context()))
}
