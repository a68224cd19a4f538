package assertions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbadges/backend/internal/auth"
	"github.com/openbadges/backend/internal/badges"
	"github.com/openbadges/backend/internal/issuers"
	"github.com/openbadges/backend/internal/middleware"
	"github.com/openbadges/backend/internal/models"
	"github.com/openbadges/backend/pkg/response"
)

// CredentialCache drops the cached credential document for an
// assertion. May be nil when caching is disabled.
type CredentialCache interface {
	InvalidateCredential(ctx context.Context, assertionID uuid.UUID)
}

// Handler handles assertion HTTP endpoints.
type Handler struct {
	repo       *Repository
	badgeRepo  *badges.Repository
	issuerRepo *issuers.Repository
	userRepo   *auth.Repository
	cache      CredentialCache
	baseURL    string
	logger     *zap.Logger
}

// NewHandler creates an assertions handler.
func NewHandler(repo *Repository, badgeRepo *badges.Repository, issuerRepo *issuers.Repository,
	userRepo *auth.Repository, cache CredentialCache, baseURL string, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, badgeRepo: badgeRepo, issuerRepo: issuerRepo,
		userRepo: userRepo, cache: cache, baseURL: baseURL, logger: logger}
}

// AwardRequest is the body for POST /assertions.
type AwardRequest struct {
	BadgeClassID        string          `json:"badge_class_id" binding:"required"`
	RecipientEmail      string          `json:"recipient_email" binding:"required,email"`
	RecipientIdentifier string          `json:"recipient_identifier"`
	Evidence            json.RawMessage `json:"evidence"`
	EvidenceURL         string          `json:"evidence_url"`
	Narrative           string          `json:"narrative"`
	Expires             *time.Time      `json:"expires"`
	Version             string          `json:"version"`
	CredentialID        string          `json:"credential_id"`
}

// RevokeRequest is the body for POST /assertions/:id/revoke.
type RevokeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// canManage reports whether the current user may award or revoke for
// the badge's issuer.
func (h *Handler) canManage(c *gin.Context, issuer *models.Issuer) bool {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if staff, _ := c.MustGet(middleware.ContextIsStaff).(bool); staff {
		return true
	}
	if placeAdmin, _ := c.MustGet(middleware.ContextIsPlaceAdmin).(bool); placeAdmin {
		return true
	}
	return issuer.OwnerID == userID
}

// Award handles POST /assertions. One badge per recipient: a repeat
// award returns 409.
func (h *Handler) Award(c *gin.Context) {
	var req AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	badgeID, err := uuid.Parse(req.BadgeClassID)
	if err != nil {
		response.BadRequest(c, "invalid badge_class_id")
		return
	}
	badge, err := h.badgeRepo.GetByID(c.Request.Context(), badgeID)
	if err != nil {
		response.NotFound(c, "badge not found")
		return
	}
	issuer, err := h.issuerRepo.GetByID(c.Request.Context(), badge.IssuerID)
	if err != nil {
		response.NotFound(c, "issuer not found")
		return
	}
	if !h.canManage(c, issuer) {
		response.Forbidden(c, "not authorized for this issuer")
		return
	}

	recipient, err := h.userRepo.GetByEmail(c.Request.Context(), req.RecipientEmail)
	if err != nil {
		response.NotFound(c, "recipient not found")
		return
	}

	version := models.BadgeVersion(req.Version)
	if req.Version == "" {
		version = badge.Version
	}
	if !models.ValidVersion(version) {
		response.BadRequest(c, "version must be v2 or v3")
		return
	}

	recipientIdentifier := req.RecipientIdentifier
	if recipientIdentifier == "" {
		recipientIdentifier = recipient.Email
	}

	a := &models.Assertion{
		ID:                  uuid.New(),
		RecipientID:         recipient.ID,
		BadgeClassID:        badge.ID,
		RecipientIdentifier: recipientIdentifier,
		Evidence:            req.Evidence,
		EvidenceURL:         req.EvidenceURL,
		Narrative:           req.Narrative,
		Expires:             req.Expires,
		Version:             version,
		CredentialID:        req.CredentialID,
	}
	a.Identifier = fmt.Sprintf("%s/badges/%s", h.baseURL, a.ID)
	if version == models.VersionV3 && len(a.CredentialType) == 0 {
		a.CredentialType = models.DefaultCredentialTypes
	}

	if err := h.repo.Create(c.Request.Context(), a); err != nil {
		if errors.Is(err, ErrAlreadyAwarded) {
			response.Conflict(c, "recipient already holds this badge")
			return
		}
		h.logger.Error("award failed", zap.Error(err),
			zap.String("badge_id", badge.ID.String()), zap.String("recipient_id", recipient.ID.String()))
		response.Internal(c, "failed to award badge")
		return
	}
	response.Created(c, a)
}

// List handles GET /assertions (staff only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list assertions")
		return
	}
	if list == nil {
		list = []*models.Assertion{}
	}
	response.OK(c, list)
}

// ListMine handles GET /assertions/mine. Badges held by the caller.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByRecipient(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list assertions")
		return
	}
	if list == nil {
		list = []*models.Assertion{}
	}
	response.OK(c, list)
}

// Get handles GET /assertions/:id. Public.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid assertion id")
		return
	}
	a, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "assertion not found")
		return
	}
	response.OK(c, a)
}

// Revoke handles POST /assertions/:id/revoke. Soft state change; the
// row is kept so the credential keeps resolving as revoked.
func (h *Handler) Revoke(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid assertion id")
		return
	}
	a, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "assertion not found")
		return
	}
	badge, err := h.badgeRepo.GetByID(c.Request.Context(), a.BadgeClassID)
	if err != nil {
		response.NotFound(c, "badge not found")
		return
	}
	issuer, err := h.issuerRepo.GetByID(c.Request.Context(), badge.IssuerID)
	if err != nil {
		response.NotFound(c, "issuer not found")
		return
	}
	if !h.canManage(c, issuer) {
		response.Forbidden(c, "not authorized for this issuer")
		return
	}

	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "reason required")
		return
	}
	if err := h.repo.Revoke(c.Request.Context(), id, req.Reason); err != nil {
		response.Internal(c, "failed to revoke assertion")
		return
	}
	if h.cache != nil {
		h.cache.InvalidateCredential(c.Request.Context(), id)
	}
	response.OK(c, gin.H{"id": a.ID, "revoked": true, "revocation_reason": req.Reason})
}
