package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/eldlog/internal/domain/model"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePNG  = "image/png"
)

// ReportDependencies exposes the daily report and its rendered artifacts.
type ReportDependencies interface {
	DailyReport(ctx context.Context) (model.DailyReport, error)
	Document(ctx context.Context) ([]byte, error)
	Raster(ctx context.Context) ([]byte, error)
}

// ReportHandler serves the daily log.
type ReportHandler struct {
	deps ReportDependencies
}

// NewReportHandler creates a new report handler.
func NewReportHandler(deps ReportDependencies) *ReportHandler {
	return &ReportHandler{deps: deps}
}

// HandleGetDailyLog handles GET /daily-log requests.
func (h *ReportHandler) HandleGetDailyLog(w http.ResponseWriter, r *http.Request) {
	const op = "api.daily_log"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rep, err := h.deps.DailyReport(r.Context())
	if err != nil {
		writeKindError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleGetDocument handles GET /report requests with the XLSX daily log.
func (h *ReportHandler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	const op = "api.report"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	data, err := h.deps.Document(r.Context())
	if err != nil {
		writeKindError(w, op, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="daily-log.xlsx"`)
	writeBytes(w, contentTypeXLSX, data)
}

// HandleGetRaster handles GET /report.png requests.
func (h *ReportHandler) HandleGetRaster(w http.ResponseWriter, r *http.Request) {
	const op = "api.report_png"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	data, err := h.deps.Raster(r.Context())
	if err != nil {
		writeKindError(w, op, err)
		return
	}
	writeBytes(w, contentTypePNG, data)
}

func writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
