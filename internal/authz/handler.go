package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-platform/aegis/internal/platform/httpx"
)

// Handler exposes the check endpoint.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, resolver: resolver, validate: validate}
}

// MountRoutes registers check routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
}

type checkRequest struct {
	ViewerID  int64       `json:"viewer_id" validate:"min=0"`
	Relations []Relation  `json:"relations" validate:"dive"`
	Items     []CheckItem `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.resolver.Check(r.Context(), req.ViewerID, req.Relations, req.Items); err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allowed": true})
}
