package registry

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-platform/aegis/internal/platform/httpx"
)

// Handler exposes registry administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/resources", h.registerResource)
	r.Delete("/resources/{id}", h.deleteResource)
	r.Post("/operations", h.registerOperation)
	r.Delete("/operations/{id}", h.deleteOperation)
}

type resourceRequest struct {
	Type        string `json:"res_type" validate:"required,max=128"`
	Data        string `json:"res_data" validate:"max=256"`
	OwnerUserID int64  `json:"owner_user_id" validate:"min=0"`
	AppID       int64  `json:"app_id" validate:"min=0"`
}

type operationRequest struct {
	Key         string `json:"op_key" validate:"required,max=128"`
	OwnerUserID int64  `json:"owner_user_id" validate:"min=0"`
	AppID       int64  `json:"app_id" validate:"min=0"`
}

func (h *Handler) registerResource(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.service.RegisterResource(r.Context(), ResourceKey{
		Type: req.Type, Data: req.Data, OwnerUserID: req.OwnerUserID, AppID: req.AppID,
	})
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) deleteResource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteResource(r.Context(), id); err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) registerOperation(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	op, err := h.service.RegisterOperation(r.Context(), OperationKey{
		Key: req.Key, OwnerUserID: req.OwnerUserID, AppID: req.AppID,
	})
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, op)
}

func (h *Handler) deleteOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteOperation(r.Context(), id); err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
