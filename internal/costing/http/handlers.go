// Package costinghttp exposes consumption reports over JSON HTTP.
package costinghttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
	"github.com/odyssey-erp/odyssey-costing/internal/platform/httpx"
)

const (
	defaultRequestTimeout = 10 * time.Second
	retryAfter            = 5 * time.Second
)

// ReportService defines the costing contract used by the handler.
type ReportService interface {
	GenerateConsumptionReport(ctx context.Context, req costing.ReportRequest) (costing.Report, error)
	InvalidateCatalog(ctx context.Context, tenantID int64) (int64, error)
}

// Handler serves consumption report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ReportService
	validator *validator.Validate
	timeout   time.Duration
}

// NewHandler constructs the costing HTTP handler. A non-positive timeout uses
// the default.
func NewHandler(logger *slog.Logger, service ReportService, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		timeout:   timeout,
	}
}

type reportQuery struct {
	TenantID   int64   `validate:"gt=0"`
	Start      string  `validate:"required,datetime=2006-01-02"`
	End        string  `validate:"required,datetime=2006-01-02"`
	Q          string  `validate:"max=120"`
	ProductIDs []int64 `validate:"max=500,dive,gt=0"`
	CategoryID *int64  `validate:"omitempty,gt=0"`
}

var fieldNames = map[string]string{
	"TenantID":   "tenant_id",
	"Start":      "start",
	"End":        "end",
	"Q":          "q",
	"ProductIDs": "product_id",
	"CategoryID": "category_id",
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	query, fields := parseReportQuery(r)
	if len(fields) == 0 {
		fields = h.validate(query)
	}
	if len(fields) > 0 {
		httpx.FieldProblem(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.service.GenerateConsumptionReport(ctx, costing.ReportRequest{
		TenantID:        query.TenantID,
		Start:           query.Start,
		End:             query.End,
		NameFilter:      query.Q,
		ProductIDs:      query.ProductIDs,
		SalesCategoryID: query.CategoryID,
	})
	if err != nil {
		h.writeError(w, r, "generate consumption report", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, report)
}

type invalidateResponse struct {
	TenantID int64 `json:"tenant_id"`
	Version  int64 `json:"version"`
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || tenantID <= 0 {
		httpx.FieldProblem(w, map[string]string{"tenant_id": "must be a positive integer"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ver, err := h.service.InvalidateCatalog(ctx, tenantID)
	if err != nil {
		h.writeError(w, r, "invalidate catalog", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, invalidateResponse{TenantID: tenantID, Version: ver})
}

func parseReportQuery(r *http.Request) (reportQuery, map[string]string) {
	fields := map[string]string{}
	values := r.URL.Query()
	q := reportQuery{
		Start: strings.TrimSpace(values.Get("start")),
		End:   strings.TrimSpace(values.Get("end")),
		Q:     strings.TrimSpace(values.Get("q")),
	}

	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil {
		fields["tenant_id"] = "must be a positive integer"
	}
	q.TenantID = tenantID

	for _, raw := range values["product_id"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				fields["product_id"] = fmt.Sprintf("invalid id %q", part)
				continue
			}
			q.ProductIDs = append(q.ProductIDs, id)
		}
	}
	if raw := strings.TrimSpace(values.Get("category_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fields["category_id"] = fmt.Sprintf("invalid id %q", raw)
		} else {
			q.CategoryID = &id
		}
	}
	return q, fields
}

func (h *Handler) validate(q reportQuery) map[string]string {
	err := h.validator.Struct(q)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"request": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field, _, _ := strings.Cut(fe.StructField(), "[")
		name := fieldNames[field]
		if name == "" {
			name = strings.ToLower(field)
		}
		fields[name] = describe(fe)
	}
	return fields
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return "must be a date formatted YYYY-MM-DD"
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "gt":
		return "must be positive"
	default:
		return "is invalid"
	}
}

// writeError maps costing errors onto HTTP statuses: validation 400, unknown
// tenant 404, retryable storage 503 and everything else 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		ve *costing.ValidationError
		se *costing.StorageError
	)
	switch {
	case errors.Is(err, costing.ErrTenantNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error()))
	case errors.As(err, &ve):
		httpx.FieldProblem(w, map[string]string{ve.Field: ve.Reason})
	case errors.As(err, &se) && se.Retryable, errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn(op+" unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Unavailable(w, retryAfter, "storage temporarily unavailable")
	default:
		h.logger.Error(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
