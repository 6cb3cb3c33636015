package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-platform/aegis/internal/platform/httpx"
)

// Handler exposes the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit/records", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{}
	filters.ViewerID, _ = strconv.ParseInt(q.Get("viewer_id"), 10, 64)
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, r, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		filters.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, r, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		filters.To = t
	}
	if raw := q.Get("allowed"); raw != "" {
		allowed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, r, http.StatusBadRequest, "invalid allowed flag")
			return
		}
		filters.Allowed = &allowed
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"records":   result.Records,
		"page":      result.Paging.Page,
		"page_size": result.Paging.PageSize,
		"has_next":  result.Paging.HasNext,
	})
}
