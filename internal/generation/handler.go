package generation

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-ads/wizard/internal/middleware"
	"github.com/aura-ads/wizard/internal/models"
	"github.com/aura-ads/wizard/internal/wizard"
	"github.com/aura-ads/wizard/pkg/queue"
	"github.com/aura-ads/wizard/pkg/response"
)

// Enqueuer hands generation jobs to the worker.
type Enqueuer interface {
	EnqueueGeneration(ctx context.Context, payload queue.GenerationPayload) error
}

// Presigner issues download URLs for archived generator output.
type Presigner interface {
	GeneratePresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// ArchiveURLResponse is the body of GET /generation/jobs/:id/archive.
type ArchiveURLResponse struct {
	URL string `json:"url"`
}

// Handler handles generation HTTP endpoints.
type Handler struct {
	store     JobStore
	queue     Enqueuer
	presigner Presigner
	registry  *wizard.Registry
	logger    *zap.Logger
}

// NewHandler creates a generation handler. presigner may be nil when archiving is off.
func NewHandler(store JobStore, q Enqueuer, presigner Presigner, registry *wizard.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, queue: q, presigner: presigner, registry: registry, logger: logger}
}

// Start handles POST /wizard/generate.
func (h *Handler) Start(c *gin.Context) {
	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	state := h.registry.Get(userID)
	if req.Language == "" {
		req.Language = state.Snapshot().Language
	}
	job := &models.GenerationJob{ID: uuid.New(), UserID: userID, Request: req}
	if err := state.BeginGeneration(job.ID); err != nil {
		if errors.Is(err, wizard.ErrGenerationInProgress) {
			response.Conflict(c, err.Error())
			return
		}
		response.Internal(c, "internal error")
		return
	}

	if err := h.store.Create(c.Request.Context(), job); err != nil {
		_ = state.AbortGeneration(job.ID)
		h.logger.Error("create generation job", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to create generation job")
		return
	}
	if err := h.queue.EnqueueGeneration(c.Request.Context(), queue.GenerationPayload{JobID: job.ID, UserID: userID}); err != nil {
		_ = state.AbortGeneration(job.ID)
		_ = h.store.Fail(c.Request.Context(), job.ID, "enqueue failed")
		h.logger.Error("enqueue generation job", zap.Error(err), zap.String("generation_id", job.ID.String()))
		response.ServiceUnavailable(c, "generation queue unavailable")
		return
	}
	h.logger.Info("generation started", zap.String("generation_id", job.ID.String()), zap.String("user_id", userID.String()))
	response.Accepted(c, job)
}

// Get handles GET /generation/jobs/:id.
func (h *Handler) Get(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	response.OK(c, job)
}

// Archive handles GET /generation/jobs/:id/archive and returns a presigned URL for the raw output.
func (h *Handler) Archive(c *gin.Context) {
	if h.presigner == nil {
		response.ServiceUnavailable(c, "archive storage not configured")
		return
	}
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	if job.ArchiveKey == "" {
		response.NotFound(c, "no archive for this job")
		return
	}
	url, err := h.presigner.GeneratePresignedDownloadURL(c.Request.Context(), job.ArchiveKey)
	if err != nil {
		h.logger.Error("presign archive", zap.Error(err), zap.String("generation_id", job.ID.String()))
		response.Internal(c, "failed to sign archive url")
		return
	}
	response.OK(c, ArchiveURLResponse{URL: url})
}

// ownedJob loads the job named in the path and writes 404 unless the caller owns it.
func (h *Handler) ownedJob(c *gin.Context) (*models.GenerationJob, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid job id")
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	job, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrJobNotFound) || (err == nil && job.UserID != userID) {
		response.NotFound(c, ErrJobNotFound.Error())
		return nil, false
	}
	if err != nil {
		h.logger.Error("get generation job", zap.Error(err))
		response.Internal(c, "internal error")
		return nil, false
	}
	return job, true
}
