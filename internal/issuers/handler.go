package issuers

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbadges/backend/internal/keys"
	"github.com/openbadges/backend/internal/middleware"
	"github.com/openbadges/backend/internal/models"
	"github.com/openbadges/backend/pkg/response"
)

// Handler handles issuer HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an issuers handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// IssuerRequest is the body for issuer create and update.
type IssuerRequest struct {
	Name          string `json:"name" binding:"required"`
	URL           string `json:"url" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Description   string `json:"description"`
	Image         string `json:"image"`
	PrivacyPolicy string `json:"privacy_policy"`
	Version       string `json:"version"`
}

// GenerateKeysRequest is the body for POST /issuers/:id/keys.
type GenerateKeysRequest struct {
	KeyType string `json:"key_type" binding:"required"`
}

func validateIssuerRequest(req *IssuerRequest) map[string]string {
	fields := map[string]string{}
	req.Name = strings.TrimSpace(req.Name)
	if len([]rune(req.Name)) < 2 {
		fields["name"] = "name must be at least 2 characters"
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fields["url"] = "url must be a valid http(s) URL"
	}
	if req.Version == "" {
		req.Version = string(models.VersionV2)
	}
	if !models.ValidVersion(models.BadgeVersion(req.Version)) {
		fields["version"] = "version must be v2 or v3"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// canManage reports whether the current user may modify the issuer.
// Staff, the issuer owner, and place admins qualify.
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

// Create handles POST /issuers.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var req IssuerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if fields := validateIssuerRequest(&req); fields != nil {
		response.UnprocessableEntity(c, "validation failed", fields)
		return
	}

	issuer := &models.Issuer{
		Version:       models.BadgeVersion(req.Version),
		Name:          req.Name,
		URL:           req.URL,
		Email:         req.Email,
		Description:   req.Description,
		Image:         req.Image,
		PrivacyPolicy: req.PrivacyPolicy,
		OwnerID:       userID,
	}
	if err := h.repo.Create(c.Request.Context(), issuer); err != nil {
		h.logger.Error("create issuer failed", zap.Error(err))
		response.Internal(c, "failed to create issuer")
		return
	}
	response.Created(c, issuer)
}

// List handles GET /issuers. Public.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list issuers")
		return
	}
	if list == nil {
		list = []*models.Issuer{}
	}
	response.OK(c, list)
}

// Get handles GET /issuers/:id. Public.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issuer id")
		return
	}
	issuer, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "issuer not found")
		return
	}
	response.OK(c, issuer)
}

// Update handles PUT /issuers/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issuer id")
		return
	}
	issuer, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "issuer not found")
		return
	}
	if !h.canManage(c, issuer) {
		response.Forbidden(c, "not authorized for this issuer")
		return
	}

	var req IssuerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Version == "" {
		req.Version = string(issuer.Version)
	}
	if fields := validateIssuerRequest(&req); fields != nil {
		response.UnprocessableEntity(c, "validation failed", fields)
		return
	}

	updated, err := h.repo.Update(c.Request.Context(), id, UpdateParams{
		Name:          req.Name,
		URL:           req.URL,
		Email:         req.Email,
		Description:   req.Description,
		Image:         req.Image,
		PrivacyPolicy: req.PrivacyPolicy,
		Version:       models.BadgeVersion(req.Version),
	})
	if err != nil {
		response.Internal(c, "failed to update issuer")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /issuers/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issuer id")
		return
	}
	issuer, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "issuer not found")
		return
	}
	if !h.canManage(c, issuer) {
		response.Forbidden(c, "not authorized for this issuer")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "failed to delete issuer")
		return
	}
	response.NoContent(c)
}

// Join handles POST /issuers/:id/join. Adds the current user as a member.
func (h *Handler) Join(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issuer id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	issuer, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "issuer not found")
		return
	}
	if err := h.repo.AddMember(c.Request.Context(), id, userID); err != nil {
		response.Internal(c, "failed to join issuer")
		return
	}
	response.OK(c, issuer)
}

// Leave handles POST /issuers/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issuer id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if err := h.repo.RemoveMember(c.Request.Context(), id, userID); err != nil {
		response.Internal(c, "failed to leave issuer")
		return
	}
	response.NoContent(c)
}

// ListMembers handles GET /issuers/:id/members.
func (h *Handler) ListMembers(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issuer id")
		return
	}
	if _, err := h.repo.GetByID(c.Request.Context(), id); err != nil {
		response.NotFound(c, "issuer not found")
		return
	}
	members, err := h.repo.ListMembers(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list members")
		return
	}
	if members == nil {
		members = []models.UserPublic{}
	}
	response.OK(c, members)
}

// GenerateKeys handles POST /issuers/:id/keys. Generates a signing key
// pair, stores the public half, and returns the private half once.
func (h *Handler) GenerateKeys(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid issuer id")
		return
	}
	issuer, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "issuer not found")
		return
	}
	if !h.canManage(c, issuer) {
		response.Forbidden(c, "not authorized for this issuer")
		return
	}

	var req GenerateKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "key_type required")
		return
	}
	keyType := models.KeyType(req.KeyType)
	if !models.ValidKeyType(keyType) {
		response.BadRequest(c, "key_type must be rsa, ed25519 or secp256k1")
		return
	}

	privateKey, publicKey, err := keys.GenerateKeyPair(keyType)
	if err != nil {
		h.logger.Error("key generation failed", zap.Error(err), zap.String("key_type", string(keyType)))
		response.Internal(c, "failed to generate key pair")
		return
	}
	if err := h.repo.SetKeys(c.Request.Context(), id, publicKey, keyType); err != nil {
		response.Internal(c, "failed to store public key")
		return
	}
	response.Created(c, gin.H{
		"key_type":    keyType,
		"public_key":  publicKey,
		"private_key": privateKey,
	})
}
