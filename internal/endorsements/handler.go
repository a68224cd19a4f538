package endorsements

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbadges/backend/internal/middleware"
	"github.com/openbadges/backend/internal/models"
	"github.com/openbadges/backend/pkg/response"
)

// Store is the persistence surface the handler needs. *Repository
// implements it; tests substitute an in-memory fake.
type Store interface {
	Create(ctx context.Context, e *models.Endorsement) error
	GetByID(ctx context.Context, id string) (*models.Endorsement, error)
	ListByTarget(ctx context.Context, target models.EndorsementTarget) ([]EndorsementWithEndorser, error)
	UpdateClaimText(ctx context.Context, id, text string) (*models.Endorsement, error)
	Delete(ctx context.Context, id string) error
	TargetExists(ctx context.Context, target models.EndorsementTarget) (bool, error)
	UserOwnsAnyIssuer(ctx context.Context, userID uuid.UUID) (bool, error)
}

// CredentialCache drops cached credential documents affected by an
// endorsement write. May be nil when caching is disabled.
type CredentialCache interface {
	InvalidateTarget(ctx context.Context, target models.EndorsementTarget)
}

// Handler handles endorsement HTTP endpoints.
type Handler struct {
	store  Store
	cache  CredentialCache
	logger *zap.Logger
}

// NewHandler creates an endorsements handler.
func NewHandler(store Store, cache CredentialCache, logger *zap.Logger) *Handler {
	return &Handler{store: store, cache: cache, logger: logger}
}

// TargetParams carries the three mutually exclusive target identifiers
// accepted by endorsement endpoints.
type TargetParams struct {
	BadgeClassID string `json:"badge_class_id" form:"badge_class_id"`
	IssuerID     string `json:"issuer_id" form:"issuer_id"`
	AssertionID  string `json:"assertion_id" form:"assertion_id"`
}

// Target converts the parameters into a validated target. Zero or more
// than one identifier, or a malformed UUID, is a caller error.
func (p TargetParams) Target() (models.EndorsementTarget, error) {
	var target models.EndorsementTarget
	count := 0
	if p.BadgeClassID != "" {
		id, err := uuid.Parse(p.BadgeClassID)
		if err != nil {
			return target, models.ErrInvalidTarget
		}
		target = models.BadgeClassTarget(id)
		count++
	}
	if p.IssuerID != "" {
		id, err := uuid.Parse(p.IssuerID)
		if err != nil {
			return target, models.ErrInvalidTarget
		}
		target = models.IssuerTarget(id)
		count++
	}
	if p.AssertionID != "" {
		id, err := uuid.Parse(p.AssertionID)
		if err != nil {
			return target, models.ErrInvalidTarget
		}
		target = models.AssertionTarget(id)
		count++
	}
	if count != 1 {
		return models.EndorsementTarget{}, models.ErrInvalidTarget
	}
	return target, nil
}

// CreateRequest is the body for POST /endorsements.
type CreateRequest struct {
	TargetParams
	ClaimText string `json:"claim_text"`
	Rating    *int   `json:"rating"`
}

// UpdateRequest is the body for PUT /endorsements/:id.
type UpdateRequest struct {
	ClaimText string `json:"claim_text"`
}

// EndorsementView is the endorsement plus endorser identity for lists.
type EndorsementView struct {
	models.Endorsement
	EndorserName  string `json:"endorser_name"`
	EndorserEmail string `json:"endorser_email"`
}

// resolveTarget parses target parameters from the query string or body
// and checks the referenced row exists. Writes the error response and
// returns ok=false on failure.
func (h *Handler) resolveTarget(c *gin.Context, p TargetParams) (models.EndorsementTarget, bool) {
	target, err := p.Target()
	if err != nil {
		response.BadRequest(c, "exactly one of badge_class_id, issuer_id or assertion_id is required")
		return target, false
	}
	exists, err := h.store.TargetExists(c.Request.Context(), target)
	if err != nil {
		response.Internal(c, "failed to resolve endorsement target")
		return target, false
	}
	if !exists {
		response.NotFound(c, string(target.Kind)+" not found")
		return target, false
	}
	return target, true
}

// canEndorse applies the creation authorization rule: staff, place
// admins, and owners of at least one issuer may endorse, independent of
// the target kind.
func (h *Handler) canEndorse(c *gin.Context, userID uuid.UUID) (bool, error) {
	if staff, _ := c.MustGet(middleware.ContextIsStaff).(bool); staff {
		return true, nil
	}
	if placeAdmin, _ := c.MustGet(middleware.ContextIsPlaceAdmin).(bool); placeAdmin {
		return true, nil
	}
	return h.store.UserOwnsAnyIssuer(c.Request.Context(), userID)
}

// Resolve handles GET /endorsements/resolve. Form support: resolves the
// target the caller wants to endorse.
func (h *Handler) Resolve(c *gin.Context) {
	var p TargetParams
	if err := c.ShouldBindQuery(&p); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	target, ok := h.resolveTarget(c, p)
	if !ok {
		return
	}
	response.OK(c, target)
}

// Create handles POST /endorsements.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	target, ok := h.resolveTarget(c, req.TargetParams)
	if !ok {
		return
	}

	allowed, err := h.canEndorse(c, userID)
	if err != nil {
		response.Internal(c, "failed to check endorsement permissions")
		return
	}
	if !allowed {
		response.Forbidden(c, "endorsing requires staff, place admin or issuer ownership")
		return
	}

	req.ClaimText = strings.TrimSpace(req.ClaimText)
	fields := map[string]string{}
	if req.ClaimText == "" {
		fields["claim_text"] = "claim text is required"
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		fields["rating"] = "rating must be between 1 and 5"
	}
	if len(fields) > 0 {
		response.UnprocessableEntity(c, "validation failed", fields)
		return
	}

	e := &models.Endorsement{
		ID:         "endorsement-" + uuid.New().String(),
		Target:     target,
		EndorserID: userID,
		Claim: models.Claim{
			Text:   req.ClaimText,
			Date:   time.Now().UTC(),
			Rating: req.Rating,
		},
	}
	if err := h.store.Create(c.Request.Context(), e); err != nil {
		if errors.Is(err, ErrTargetNotFound) {
			response.NotFound(c, string(target.Kind)+" not found")
			return
		}
		h.logger.Error("create endorsement failed", zap.Error(err),
			zap.String("kind", string(target.Kind)), zap.String("target_id", target.ID.String()))
		response.Internal(c, "failed to create endorsement")
		return
	}
	h.invalidate(c.Request.Context(), target)

	response.Created(c, gin.H{"endorsement": e, "is_endorsed": true})
}

// List handles GET /endorsements. Ordered newest first.
func (h *Handler) List(c *gin.Context) {
	var p TargetParams
	if err := c.ShouldBindQuery(&p); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	target, ok := h.resolveTarget(c, p)
	if !ok {
		return
	}
	list, err := h.store.ListByTarget(c.Request.Context(), target)
	if err != nil {
		response.Internal(c, "failed to list endorsements")
		return
	}
	views := make([]EndorsementView, 0, len(list))
	for _, item := range list {
		views = append(views, EndorsementView{
			Endorsement:   item.Endorsement,
			EndorserName:  item.Endorser.ProfileName(),
			EndorserEmail: item.Endorser.Email,
		})
	}
	response.OK(c, views)
}

// Update handles PUT /endorsements/:id. Claim text only, endorser only.
func (h *Handler) Update(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id := c.Param("id")

	e, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "endorsement not found")
			return
		}
		response.Internal(c, "failed to load endorsement")
		return
	}
	if e.EndorserID != userID {
		response.Forbidden(c, "only the endorser may edit this endorsement")
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req.ClaimText = strings.TrimSpace(req.ClaimText)
	if req.ClaimText == "" {
		response.UnprocessableEntity(c, "validation failed", map[string]string{"claim_text": "claim text is required"})
		return
	}

	updated, err := h.store.UpdateClaimText(c.Request.Context(), id, req.ClaimText)
	if err != nil {
		response.Internal(c, "failed to update endorsement")
		return
	}
	h.invalidate(c.Request.Context(), updated.Target)
	response.OK(c, updated)
}

// Delete handles DELETE /endorsements/:id. Endorser only.
func (h *Handler) Delete(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id := c.Param("id")

	e, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "endorsement not found")
			return
		}
		response.Internal(c, "failed to load endorsement")
		return
	}
	if e.EndorserID != userID {
		response.Forbidden(c, "only the endorser may delete this endorsement")
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "failed to delete endorsement")
		return
	}
	h.invalidate(c.Request.Context(), e.Target)
	response.NoContent(c)
}

func (h *Handler) invalidate(ctx context.Context, target models.EndorsementTarget) {
	if h.cache != nil {
		h.cache.InvalidateTarget(ctx, target)
	}
}
