package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Enqueuer submits ledger jobs; *Client satisfies it.
type Enqueuer interface {
	EnqueueRecurringDue(ctx context.Context, payload RecurringDuePayload) (*asynq.TaskInfo, error)
	EnqueueGLIntegrity(ctx context.Context, payload GLIntegrityPayload) (*asynq.TaskInfo, error)
}

// QueueStats is the health view of the ledger queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
}

// Handler exposes HTTP endpoints for queue health and tenant-scoped job triggers.
type Handler struct {
	inspector *asynq.Inspector
	enqueuer  Enqueuer
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints. Either dependency may be nil.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// WithEnqueuer enables the trigger endpoints.
func (h *Handler) WithEnqueuer(e Enqueuer) *Handler {
	h.enqueuer = e
	return h
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/recurring-due", h.triggerRecurringDue)
	r.Post("/gl-integrity", h.triggerGLIntegrity)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	stats := QueueStats{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, stats)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	if info != nil {
		stats = QueueStats{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Failed:    info.Archived,
		}
	}
	httpx.JSON(w, http.StatusOK, stats)
}

type triggerRequest struct {
	AsOf string `json:"as_of"`
}

func (h *Handler) triggerRecurringDue(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, func(ctx context.Context, tenantID int64, asOf time.Time) (*asynq.TaskInfo, error) {
		return h.enqueuer.EnqueueRecurringDue(ctx, RecurringDuePayload{TenantID: tenantID, AsOf: asOf})
	})
}

func (h *Handler) triggerGLIntegrity(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, func(ctx context.Context, tenantID int64, _ time.Time) (*asynq.TaskInfo, error) {
		return h.enqueuer.EnqueueGLIntegrity(ctx, GLIntegrityPayload{Tenants: []int64{tenantID}})
	})
}

// trigger enqueues a job for the caller's tenant only.
func (h *Handler) trigger(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, time.Time) (*asynq.TaskInfo, error)) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "job queue not configured")
		return
	}
	var req triggerRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	var asOf time.Time
	if req.AsOf != "" {
		asOf, err = httpx.ParseDate(req.AsOf)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "as_of must be YYYY-MM-DD")
			return
		}
	}
	info, err := fn(r.Context(), id.TenantID, asOf)
	if err != nil {
		h.logger.Error("enqueue job", slog.Int64("tenant_id", id.TenantID), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]string{"task_id": info.ID, "queue": info.Queue}})
}
