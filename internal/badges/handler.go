package badges

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbadges/backend/internal/issuers"
	"github.com/openbadges/backend/internal/middleware"
	"github.com/openbadges/backend/internal/models"
	"github.com/openbadges/backend/pkg/response"
	"github.com/openbadges/backend/pkg/storage"
)

// Handler handles badge class HTTP endpoints.
type Handler struct {
	repo       *Repository
	issuerRepo *issuers.Repository
	s3         *storage.S3
	logger     *zap.Logger
}

// NewHandler creates a badges handler. s3 may be nil when image uploads
// are not configured.
func NewHandler(repo *Repository, issuerRepo *issuers.Repository, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, issuerRepo: issuerRepo, s3: s3, logger: logger}
}

// BadgeRequest is the body for badge create and update.
type BadgeRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Image       string `json:"image"`
	CriteriaURL string `json:"criteria_url"`
	IssuerID    string `json:"issuer_id"`
	Category    string `json:"category"`
	Skills      string `json:"skills"`
	Level       string `json:"level"`
	Version     string `json:"version"`
}

// AlignmentRequest is the body for POST /badges/:id/alignments.
type AlignmentRequest struct {
	TargetName        string `json:"target_name" binding:"required"`
	TargetURL         string `json:"target_url" binding:"required"`
	TargetDescription string `json:"target_description"`
	TargetFramework   string `json:"target_framework"`
	TargetCode        string `json:"target_code"`
}

// BadgeView is a badge class with derived fields for list responses.
type BadgeView struct {
	*models.BadgeClass
	SkillsList []string `json:"skills_list"`
	IsEndorsed bool     `json:"is_endorsed"`
}

// IssuerBadges groups the public badge listing by issuer.
type IssuerBadges struct {
	Issuer *models.Issuer `json:"issuer"`
	Badges []BadgeView    `json:"badges"`
}

// canManage reports whether the current user may modify badges of the
// given issuer: staff, place admins, and the issuer owner qualify.
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

func validateBadgeRequest(req *BadgeRequest, current *models.BadgeClass) map[string]string {
	fields := map[string]string{}
	req.Name = strings.TrimSpace(req.Name)
	if len([]rune(req.Name)) < 2 {
		fields["name"] = "name must be at least 2 characters"
	}
	if req.Version == "" {
		if current != nil {
			req.Version = string(current.Version)
		} else {
			req.Version = string(models.VersionV2)
		}
	}
	if !models.ValidVersion(models.BadgeVersion(req.Version)) {
		fields["version"] = "version must be v2 or v3"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Create handles POST /badges.
func (h *Handler) Create(c *gin.Context) {
	var req BadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	issuerID, err := uuid.Parse(req.IssuerID)
	if err != nil {
		response.BadRequest(c, "invalid issuer_id")
		return
	}
	issuer, err := h.issuerRepo.GetByID(c.Request.Context(), issuerID)
	if err != nil {
		response.NotFound(c, "issuer not found")
		return
	}
	if !h.canManage(c, issuer) {
		response.Forbidden(c, "not authorized for this issuer")
		return
	}
	if fields := validateBadgeRequest(&req, nil); fields != nil {
		response.UnprocessableEntity(c, "validation failed", fields)
		return
	}

	b := &models.BadgeClass{
		Version:     models.BadgeVersion(req.Version),
		Name:        req.Name,
		Type:        "Achievement",
		Description: req.Description,
		Image:       req.Image,
		CriteriaURL: req.CriteriaURL,
		IssuerID:    issuerID,
		Category:    req.Category,
		Skills:      req.Skills,
		Level:       req.Level,
	}
	if err := h.repo.Create(c.Request.Context(), b); err != nil {
		h.logger.Error("create badge failed", zap.Error(err))
		response.Internal(c, "failed to create badge")
		return
	}
	response.Created(c, b)
}

// List handles GET /badges. Public, newest first.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list badges")
		return
	}
	if list == nil {
		list = []*models.BadgeClass{}
	}
	response.OK(c, list)
}

// PublicList handles GET /badges/public. Badges grouped by issuer, each
// flagged with whether the calling user has endorsed it. Anonymous
// callers get is_endorsed false everywhere.
func (h *Handler) PublicList(c *gin.Context) {
	ctx := c.Request.Context()
	issuerList, err := h.issuerRepo.List(ctx)
	if err != nil {
		response.Internal(c, "failed to list issuers")
		return
	}

	var userID uuid.UUID
	if v, ok := c.Get(middleware.ContextUserID); ok {
		userID = v.(uuid.UUID)
	}

	groups := []IssuerBadges{}
	for _, issuer := range issuerList {
		badgeList, err := h.repo.ListByIssuer(ctx, issuer.ID)
		if err != nil {
			response.Internal(c, "failed to list badges")
			return
		}
		endorsed := map[uuid.UUID]bool{}
		if userID != uuid.Nil && len(badgeList) > 0 {
			ids := make([]uuid.UUID, len(badgeList))
			for i, b := range badgeList {
				ids[i] = b.ID
			}
			endorsed, err = h.repo.EndorsedBadgeIDs(ctx, userID, ids)
			if err != nil {
				response.Internal(c, "failed to load endorsements")
				return
			}
		}
		views := make([]BadgeView, 0, len(badgeList))
		for _, b := range badgeList {
			views = append(views, BadgeView{
				BadgeClass: b,
				SkillsList: b.SkillsList(),
				IsEndorsed: endorsed[b.ID],
			})
		}
		groups = append(groups, IssuerBadges{Issuer: issuer, Badges: views})
	}
	response.OK(c, groups)
}

// Get handles GET /badges/:id. Public.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid badge id")
		return
	}
	b, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "badge not found")
		return
	}
	response.OK(c, BadgeView{BadgeClass: b, SkillsList: b.SkillsList()})
}

func (h *Handler) getManaged(c *gin.Context) *models.BadgeClass {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid badge id")
		return nil
	}
	b, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "badge not found")
		return nil
	}
	issuer, err := h.issuerRepo.GetByID(c.Request.Context(), b.IssuerID)
	if err != nil {
		response.NotFound(c, "issuer not found")
		return nil
	}
	if !h.canManage(c, issuer) {
		response.Forbidden(c, "not authorized for this badge")
		return nil
	}
	return b
}

// Update handles PUT /badges/:id.
func (h *Handler) Update(c *gin.Context) {
	b := h.getManaged(c)
	if b == nil {
		return
	}
	var req BadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if fields := validateBadgeRequest(&req, b); fields != nil {
		response.UnprocessableEntity(c, "validation failed", fields)
		return
	}
	image := req.Image
	if image == "" {
		image = b.Image
	}
	updated, err := h.repo.Update(c.Request.Context(), b.ID, UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Image:       image,
		CriteriaURL: req.CriteriaURL,
		Category:    req.Category,
		Skills:      req.Skills,
		Level:       req.Level,
		Version:     models.BadgeVersion(req.Version),
	})
	if err != nil {
		response.Internal(c, "failed to update badge")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /badges/:id.
func (h *Handler) Delete(c *gin.Context) {
	b := h.getManaged(c)
	if b == nil {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), b.ID); err != nil {
		response.Internal(c, "failed to delete badge")
		return
	}
	h.deleteStoredImage(c.Request.Context(), b.Image, "")
	response.NoContent(c)
}

// UploadImage handles POST /badges/:id/image. Multipart upload stored in
// S3 under badges/{id}/, publicly readable.
func (h *Handler) UploadImage(c *gin.Context) {
	if h.s3 == nil {
		response.Internal(c, "image storage not configured")
		return
	}
	b := h.getManaged(c)
	if b == nil {
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		response.BadRequest(c, "image file required")
		return
	}
	if file.Size > storage.MaxImageFileSize {
		response.BadRequest(c, "image exceeds maximum size of 5MB")
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !storage.ValidateImageFileType(contentType, file.Filename) {
		response.BadRequest(c, "unsupported image type: allowed jpg, png, webp, svg")
		return
	}
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(file.Filename)
	}

	f, err := file.Open()
	if err != nil {
		response.Internal(c, "failed to read upload")
		return
	}
	defer f.Close()

	key := storage.BadgeImageKey(b.ID.String(), file.Filename)
	url, err := h.s3.Upload(c.Request.Context(), key, contentType, f, file.Size)
	if err != nil {
		h.logger.Error("badge image upload failed", zap.Error(err), zap.String("badge_id", b.ID.String()))
		response.Internal(c, "failed to upload image")
		return
	}
	if err := h.repo.SetImage(c.Request.Context(), b.ID, url); err != nil {
		response.Internal(c, "failed to store image reference")
		return
	}
	h.deleteStoredImage(c.Request.Context(), b.Image, key)
	response.OK(c, gin.H{"image": url})
}

// deleteStoredImage removes a replaced or orphaned image object. Best
// effort: a leftover object only costs storage.
func (h *Handler) deleteStoredImage(ctx context.Context, ref, keep string) {
	if h.s3 == nil {
		return
	}
	key, ok := h.s3.ObjectKey(ref)
	if !ok || key == keep {
		return
	}
	if err := h.s3.DeleteObject(ctx, key); err != nil {
		h.logger.Warn("failed to delete badge image object", zap.Error(err), zap.String("key", key))
	}
}

// DownloadImage handles GET /badges/:id/image. Objects in the images
// bucket are streamed; external image URLs redirect.
func (h *Handler) DownloadImage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid badge id")
		return
	}
	b, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "badge not found")
		return
	}
	if b.Image == "" {
		response.NotFound(c, "badge has no image")
		return
	}
	if h.s3 != nil {
		if key, ok := h.s3.ObjectKey(b.Image); ok {
			body, contentType, err := h.s3.GetObjectStream(c.Request.Context(), key)
			if err != nil {
				response.NotFound(c, "image not found")
				return
			}
			defer body.Close()
			if contentType == "" {
				contentType = storage.ContentTypeForFilename(key)
			}
			c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
			return
		}
	}
	c.Redirect(http.StatusFound, b.Image)
}

// AddAlignment handles POST /badges/:id/alignments.
func (h *Handler) AddAlignment(c *gin.Context) {
	b := h.getManaged(c)
	if b == nil {
		return
	}
	var req AlignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a := &models.Alignment{
		BadgeClassID:      b.ID,
		TargetName:        req.TargetName,
		TargetURL:         req.TargetURL,
		TargetDescription: req.TargetDescription,
		TargetFramework:   req.TargetFramework,
		TargetCode:        req.TargetCode,
	}
	if err := h.repo.AddAlignment(c.Request.Context(), a); err != nil {
		response.Internal(c, "failed to add alignment")
		return
	}
	response.Created(c, a)
}

// ListAlignments handles GET /badges/:id/alignments. Public.
func (h *Handler) ListAlignments(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid badge id")
		return
	}
	if _, err := h.repo.GetByID(c.Request.Context(), id); err != nil {
		response.NotFound(c, "badge not found")
		return
	}
	list, err := h.repo.ListAlignments(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list alignments")
		return
	}
	if list == nil {
		list = []models.Alignment{}
	}
	response.OK(c, list)
}

// DeleteAlignment handles DELETE /badges/:id/alignments/:alignmentID.
func (h *Handler) DeleteAlignment(c *gin.Context) {
	b := h.getManaged(c)
	if b == nil {
		return
	}
	alignmentID, err := uuid.Parse(c.Param("alignmentID"))
	if err != nil {
		response.BadRequest(c, "invalid alignment id")
		return
	}
	removed, err := h.repo.DeleteAlignment(c.Request.Context(), b.ID, alignmentID)
	if err != nil {
		response.Internal(c, "failed to delete alignment")
		return
	}
	if !removed {
		response.NotFound(c, "alignment not found")
		return
	}
	response.NoContent(c)
}
