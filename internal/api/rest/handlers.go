package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/cache"
	"github.com/serviceline/ticket-analytics-backend/internal/service/reporting"
)

// Handler serves the reporting REST endpoints
type Handler struct {
	reports  reporting.Service
	runs     *cache.RunStatusStore
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new REST handler
func NewHandler(reports reporting.Service, runs *cache.RunStatusStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reports:  reports,
		runs:     runs,
		validate: validator.New(),
		logger:   logger,
	}
}

// handleGenerateReport runs the full pipeline for the requested window and
// returns the assembled document
func (h *Handler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req reporting.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_JSON", "request body must be valid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_REQUEST", err.Error()))
		return
	}

	doc, err := h.reports.GenerateReport(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/reports/"+doc.ID.String())
	h.writeJSON(w, http.StatusCreated, doc)
}

// handleGetReport returns a previously generated document by ID
func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_REPORT_ID", "report ID must be a UUID"))
		return
	}

	doc, err := h.reports.GetReport(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// handleGetStats computes one aggregation dimension over a window
func (h *Handler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	req := &reporting.StatsRequest{
		Start:     r.URL.Query().Get("start"),
		End:       r.URL.Query().Get("end"),
		Dimension: r.URL.Query().Get("dimension"),
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_REQUEST", err.Error()))
		return
	}

	result, err := h.reports.GetAggregates(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// handleGetTrend computes one metric series over a window
func (h *Handler) handleGetTrend(w http.ResponseWriter, r *http.Request) {
	req := &reporting.TrendRequest{
		Start:    r.URL.Query().Get("start"),
		End:      r.URL.Query().Get("end"),
		Metric:   r.URL.Query().Get("metric"),
		Category: r.URL.Query().Get("category"),
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_REQUEST", err.Error()))
		return
	}

	series, err := h.reports.GetTrend(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, series)
}

// handleGetRun returns the cached lifecycle state of one report run
func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, r, errors.NewNotFoundError("run"))
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_RUN_ID", "run ID must be a UUID"))
		return
	}

	status, err := h.runs.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, errors.NewNotFoundError("run"))
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// errorResponse is the wire shape of every error this API returns
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps any error onto the uniform REST error shape
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := errors.ToAppError(err)

	if appErr.StatusCode >= 500 {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", appErr.Code,
			"error", err,
		)
	}

	resp := errorResponse{
		Error: errorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   appErr.Details,
			Retryable: appErr.Retryable,
			RequestID: requestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}
	h.writeJSON(w, appErr.StatusCode, resp)
}
