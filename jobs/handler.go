package jobs

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/aegis-platform/aegis/internal/platform/httpx"
)

// Enqueuer submits prepared tasks. Satisfied by *Client.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Handler exposes on-demand job submission, for operators who cannot wait
// for the next cron run.
type Handler struct {
	logger   *slog.Logger
	enqueuer Enqueuer
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, enqueuer: enqueuer}
}

// MountRoutes registers job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/jobs/grant-sweep", h.runGrantSweep)
}

type taskResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

func (h *Handler) runGrantSweep(w http.ResponseWriter, r *http.Request) {
	var payload GrantSweepPayload
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Problem(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	task, err := NewGrantSweepTask(payload)
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	info, err := h.enqueuer.Enqueue(r.Context(), task)
	if err != nil {
		httpx.RespondError(h.logger, w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "grant sweep enqueued", slog.String("task_id", info.ID))
	httpx.JSON(w, http.StatusAccepted, taskResponse{TaskID: info.ID, Queue: info.Queue})
}
