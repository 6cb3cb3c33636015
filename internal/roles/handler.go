package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-platform/aegis/internal/platform/httpx"
	"github.com/aegis-platform/aegis/internal/shared"
)

// Handler exposes role administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.addRole)
	r.Post("/roles/relation", h.addRelationRole)
	r.Get("/roles/{id}", h.getRole)
	r.Put("/roles/{id}", h.editRole)
	r.Put("/roles/{id}/relation", h.editRelationRole)
	r.Delete("/roles/{id}", h.deleteRole)
	r.Post("/roles/{id}/users", h.addUsers)
	r.Delete("/roles/{id}/users", h.delUsers)
	r.Put("/roles/{id}/ops", h.setOps)
}

type roleRequest struct {
	OwnerUserID int64  `json:"owner_user_id" validate:"min=0"`
	AppID       int64  `json:"app_id" validate:"min=0"`
	Name        string `json:"name" validate:"required,max=128"`
	RelationKey string `json:"relation_key" validate:"max=128"`
	UserRange   int16  `json:"user_range" validate:"min=1,max=4"`
	ResRange    int16  `json:"res_range" validate:"min=1,max=5"`
	Priority    int16  `json:"priority" validate:"min=0,max=100"`
}

type roleResponse struct {
	ID          int64  `json:"id"`
	OwnerUserID int64  `json:"owner_user_id"`
	AppID       int64  `json:"app_id"`
	Name        string `json:"name"`
	RelationKey string `json:"relation_key,omitempty"`
	UserRange   int16  `json:"user_range"`
	ResRange    int16  `json:"res_range"`
	Priority    int16  `json:"priority"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		OwnerUserID: role.OwnerUserID,
		AppID:       role.AppID,
		Name:        role.Name,
		RelationKey: role.RelationKey,
		UserRange:   int16(role.UserRange),
		ResRange:    int16(role.ResRange),
		Priority:    role.Priority,
	}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	ownerID, err := strconv.ParseInt(r.URL.Query().Get("owner_user_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid owner_user_id")
		return
	}
	appID, _ := strconv.ParseInt(r.URL.Query().Get("app_id"), 10, 64)
	roles, err := h.service.ListRoles(r.Context(), ownerID, appID)
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) addRole(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRole(w, r)
	if !ok {
		return
	}
	role, err := h.service.AddRole(r.Context(), h.actor(r), nil, RoleInput{
		OwnerUserID: req.OwnerUserID,
		AppID:       req.AppID,
		Name:        req.Name,
		RelationKey: req.RelationKey,
		UserRange:   UserRange(req.UserRange),
		ResRange:    ResRange(req.ResRange),
		Priority:    req.Priority,
	})
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) addRelationRole(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRole(w, r)
	if !ok {
		return
	}
	role, err := h.service.AddRelationRole(r.Context(), h.actor(r), nil, RoleInput{
		OwnerUserID: req.OwnerUserID,
		AppID:       req.AppID,
		Name:        req.Name,
		RelationKey: req.RelationKey,
		ResRange:    ResRange(req.ResRange),
		Priority:    req.Priority,
	})
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) editRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeRole(w, r)
	if !ok {
		return
	}
	role, err := h.service.EditRole(r.Context(), h.actor(r), nil, id, EditRoleInput{
		Name:        req.Name,
		RelationKey: req.RelationKey,
		UserRange:   UserRange(req.UserRange),
		ResRange:    ResRange(req.ResRange),
		Priority:    req.Priority,
	})
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) editRelationRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeRole(w, r)
	if !ok {
		return
	}
	role, err := h.service.EditRelationRole(r.Context(), h.actor(r), nil, id, EditRoleInput{
		Name:        req.Name,
		RelationKey: req.RelationKey,
		ResRange:    ResRange(req.ResRange),
		Priority:    req.Priority,
	})
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), h.actor(r), nil, id); err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantRequest struct {
	UserIDs []int64 `json:"user_ids" validate:"required,min=1,dive,min=1"`
	Timeout int64   `json:"timeout" validate:"min=0"`
}

func (h *Handler) addUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	changed, err := h.service.RoleAddUser(r.Context(), h.actor(r), nil, id, req.UserIDs, req.Timeout)
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"changed": changed})
}

func (h *Handler) delUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.UserIDs) == 0 {
		httpx.Problem(w, r, http.StatusBadRequest, "user_ids must not be empty")
		return
	}
	removed, err := h.service.RoleDelUser(r.Context(), h.actor(r), nil, id, req.UserIDs)
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"removed": removed})
}

type setOpsRequest struct {
	Ops []permissionRefRequest `json:"ops" validate:"dive"`
}

type permissionRefRequest struct {
	ResID      int64 `json:"res_id" validate:"min=1"`
	OpID       int64 `json:"op_id" validate:"min=1"`
	Positivity int16 `json:"positivity" validate:"min=1,max=2"`
}

func (h *Handler) setOps(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req setOpsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	refs := make([]PermissionRef, 0, len(req.Ops))
	for _, op := range req.Ops {
		refs = append(refs, PermissionRef{ResID: op.ResID, OpID: op.OpID, Positivity: Positivity(op.Positivity)})
	}
	if err := h.service.RoleSetOps(r.Context(), h.actor(r), nil, id, refs); err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeRole(w http.ResponseWriter, r *http.Request) (roleRequest, bool) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if err := h.validate.StructPartial(req, "OwnerUserID", "AppID", "Name", "RelationKey", "Priority"); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, r, http.StatusBadRequest, "invalid role id")
		return 0, false
	}
	return id, true
}

func (h *Handler) actor(r *http.Request) int64 {
	return shared.MetaFromContext(r.Context()).ActorID
}
