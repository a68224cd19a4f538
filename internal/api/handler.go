// Package api serves the read-only Open Badges JSON-LD API. Documents
// are emitted raw, without the management API's response envelope.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbadges/backend/internal/endorsements"
	"github.com/openbadges/backend/internal/models"
	"github.com/openbadges/backend/internal/openbadges"
)

// AssertionStore reads assertion rows.
type AssertionStore interface {
	List(ctx context.Context) ([]*models.Assertion, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Assertion, error)
}

// BadgeStore reads badge class rows.
type BadgeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.BadgeClass, error)
}

// EndorsementStore reads endorsements with their endorsers.
type EndorsementStore interface {
	ListByTarget(ctx context.Context, target models.EndorsementTarget) ([]endorsements.EndorsementWithEndorser, error)
}

// CredentialCache caches assembled single-credential documents. May be
// nil to disable caching.
type CredentialCache interface {
	GetCredential(ctx context.Context, assertionID uuid.UUID) ([]byte, bool)
	SetCredential(ctx context.Context, assertionID uuid.UUID, body []byte)
}

// Handler serves the v3 read API.
type Handler struct {
	assertions   AssertionStore
	badges       BadgeStore
	endorsements EndorsementStore
	assembler    *openbadges.Assembler
	cache        CredentialCache
	logger       *zap.Logger
}

// NewHandler creates a read API handler.
func NewHandler(assertionStore AssertionStore, badgeStore BadgeStore, endorsementStore EndorsementStore,
	assembler *openbadges.Assembler, cache CredentialCache, logger *zap.Logger) *Handler {
	return &Handler{
		assertions:   assertionStore,
		badges:       badgeStore,
		endorsements: endorsementStore,
		assembler:    assembler,
		cache:        cache,
		logger:       logger,
	}
}

func (h *Handler) endorsementViews(ctx context.Context, target models.EndorsementTarget) ([]openbadges.EndorsementView, error) {
	list, err := h.endorsements.ListByTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	views := make([]openbadges.EndorsementView, 0, len(list))
	for i := range list {
		views = append(views, openbadges.EndorsementView{
			Endorsement: list[i].Endorsement,
			Endorser:    &list[i].Endorser,
		})
	}
	return views, nil
}

// buildCredential assembles the full document for one assertion.
func (h *Handler) buildCredential(ctx context.Context, assertion *models.Assertion) (openbadges.Credential, error) {
	badge, err := h.badges.GetByID(ctx, assertion.BadgeClassID)
	if err != nil {
		return openbadges.Credential{}, err
	}
	badgeViews, err := h.endorsementViews(ctx, models.BadgeClassTarget(badge.ID))
	if err != nil {
		return openbadges.Credential{}, err
	}
	assertionViews, err := h.endorsementViews(ctx, models.AssertionTarget(assertion.ID))
	if err != nil {
		return openbadges.Credential{}, err
	}
	return h.assembler.BuildCredential(assertion, badge, badgeViews, assertionViews), nil
}

// ListCredentials handles GET /api/v3/badges/.
func (h *Handler) ListCredentials(c *gin.Context) {
	list, err := h.assertions.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list assertions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load credentials"})
		return
	}
	docs := make([]openbadges.Credential, 0, len(list))
	for _, assertion := range list {
		doc, err := h.buildCredential(c.Request.Context(), assertion)
		if err != nil {
			h.logger.Error("assemble credential failed", zap.Error(err),
				zap.String("assertion_id", assertion.ID.String()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble credentials"})
			return
		}
		docs = append(docs, doc)
	}
	c.JSON(http.StatusOK, docs)
}

// GetCredential handles GET /api/v3/badges/:id/.
func (h *Handler) GetCredential(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
		return
	}

	if h.cache != nil {
		if body, ok := h.cache.GetCredential(c.Request.Context(), id); ok {
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			return
		}
	}

	assertion, err := h.assertions.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
		return
	}
	doc, err := h.buildCredential(c.Request.Context(), assertion)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
		return
	}

	body, err := json.Marshal(doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble credential"})
		return
	}
	if h.cache != nil {
		h.cache.SetCredential(c.Request.Context(), id, body)
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GetAchievement handles GET /api/v3/badges/:id/achievement/.
func (h *Handler) GetAchievement(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
		return
	}
	assertion, err := h.assertions.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
		return
	}
	badge, err := h.badges.GetByID(c.Request.Context(), assertion.BadgeClassID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "achievement not found"})
		return
	}
	views, err := h.endorsementViews(c.Request.Context(), models.BadgeClassTarget(badge.ID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load endorsements"})
		return
	}
	c.JSON(http.StatusOK, h.assembler.BuildAchievement(badge, views))
}

// BadgeWithEndorsements handles GET /api/v3/badge-with-endorsements/?badge_id=.
func (h *Handler) BadgeWithEndorsements(c *gin.Context) {
	badgeIDParam := c.Query("badge_id")
	if badgeIDParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "badge_id query parameter is required"})
		return
	}
	badgeID, err := uuid.Parse(badgeIDParam)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "badge not found"})
		return
	}
	badge, err := h.badges.GetByID(c.Request.Context(), badgeID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "badge not found"})
		return
	}
	views, err := h.endorsementViews(c.Request.Context(), models.BadgeClassTarget(badge.ID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load endorsements"})
		return
	}
	c.JSON(http.StatusOK, h.assembler.BuildAchievement(badge, views))
}
