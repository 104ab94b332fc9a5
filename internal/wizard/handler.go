package wizard

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-ads/wizard/internal/middleware"
	"github.com/aura-ads/wizard/internal/models"
	"github.com/aura-ads/wizard/pkg/response"
)

// AddAdGroupRequest is the body for POST /wizard/ad-groups.
type AddAdGroupRequest struct {
	Name string `json:"name"`
}

// AdGroupReview lists the RSA issues of one ad group.
type AdGroupReview struct {
	AdGroupID string   `json:"ad_group_id"`
	Name      string   `json:"name"`
	Issues    []string `json:"issues"`
}

// Handler handles wizard HTTP endpoints.
type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates a wizard handler.
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, logger: logger}
}

func (h *Handler) state(c *gin.Context) *State {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	return h.registry.Get(userID)
}

// Get handles GET /wizard.
func (h *Handler) Get(c *gin.Context) {
	response.OK(c, h.state(c).Snapshot())
}

// Reset handles POST /wizard/reset.
func (h *Handler) Reset(c *gin.Context) {
	s := h.state(c)
	s.Reset()
	response.OK(c, s.Snapshot())
}

// AddAdGroup handles POST /wizard/ad-groups.
func (h *Handler) AddAdGroup(c *gin.Context) {
	var req AddAdGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := h.state(c)
	g := s.AddAdGroup(req.Name)
	created, ok := s.AdGroup(g.ID)
	if !ok {
		// removed concurrently
		response.NotFound(c, ErrAdGroupNotFound.Error())
		return
	}
	response.Created(c, created)
}

// RemoveAdGroup handles DELETE /wizard/ad-groups/:groupId.
func (h *Handler) RemoveAdGroup(c *gin.Context) {
	if err := h.state(c).RemoveAdGroup(c.Param("groupId")); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateSettings handles PATCH /wizard/settings.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req SettingsPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := h.state(c)
	if err := s.UpdateSettings(req); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, s.Snapshot())
}

// LoadStructure handles PUT /wizard/structure.
func (h *Handler) LoadStructure(c *gin.Context) {
	var req models.CampaignStructure
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := h.state(c)
	if err := s.LoadFromStructure(&req); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, s.Snapshot())
}

// UpdateAsset handles PATCH /wizard/ad-groups/:groupId/assets/:assetId.
func (h *Handler) UpdateAsset(c *gin.Context) {
	var req AssetPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := h.state(c)
	groupID := c.Param("groupId")
	if err := s.UpdateAsset(groupID, c.Param("assetId"), req); err != nil {
		h.writeError(c, err)
		return
	}
	g, ok := s.AdGroup(groupID)
	if !ok {
		response.NotFound(c, ErrAdGroupNotFound.Error())
		return
	}
	response.OK(c, g)
}

// Review handles GET /wizard/review.
func (h *Handler) Review(c *gin.Context) {
	draft := h.state(c).Snapshot()
	out := make([]AdGroupReview, 0, len(draft.AdGroups))
	for _, g := range draft.AdGroups {
		issues := g.Issues()
		if issues == nil {
			issues = []string{}
		}
		out = append(out, AdGroupReview{AdGroupID: g.ID, Name: g.Name, Issues: issues})
	}
	response.OK(c, out)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var serr *models.StructureError
	switch {
	case errors.As(err, &serr):
		response.UnprocessableEntity(c, serr.Error(), serr.Issues)
	case errors.Is(err, ErrAdGroupNotFound), errors.Is(err, ErrAssetNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrNegativeBudget), errors.Is(err, ErrInvalidReviewState):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrGenerationInProgress):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("wizard request failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
