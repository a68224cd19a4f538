package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbadges/backend/pkg/queue"
	"github.com/openbadges/backend/pkg/response"
	"github.com/openbadges/backend/pkg/utils"

	"github.com/openbadges/backend/internal/models"
)

// Mailer enqueues outgoing emails for async delivery.
type Mailer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest is the body for PUT /users/me.
type UpdateProfileRequest struct {
	DisplayName        string `json:"display_name"`
	Bio                string `json:"bio"`
	AvatarURL          string `json:"avatar_url"`
	Website            string `json:"website"`
	Language           string `json:"language"`
	EmailNotifications *bool  `json:"email_notifications"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo    *Repository
	jwt     *JWTService
	mailer  Mailer
	baseURL string
	logger  *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwt *JWTService, mailer Mailer, baseURL string, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, mailer: mailer, baseURL: baseURL, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	_, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err == nil {
		response.BadRequest(c, "email already registered")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			response.BadRequest(c, "password exceeds 72 bytes")
			return
		}
		response.Internal(c, "failed to hash password")
		return
	}

	verificationToken, err := utils.GenerateVerificationToken()
	if err != nil {
		response.Internal(c, "failed to generate verification token")
		return
	}

	user, err := h.repo.Create(c.Request.Context(), req.Email, hash, req.DisplayName, verificationToken)
	if err != nil {
		response.Internal(c, "failed to create user")
		return
	}

	h.sendVerificationEmail(c.Request.Context(), user)

	token, err := h.jwt.Generate(user.ID, user.Email, user.IsStaff, user.IsPlaceAdmin)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if !user.IsActive {
		response.Unauthorized(c, "account disabled")
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, user.IsStaff, user.IsPlaceAdmin)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	c.JSON(http.StatusOK, response.Body{Success: true, Data: TokenResponse{Token: token, User: user.ToPublic()}})
}

// currentUserID reads the authenticated user ID set by the JWT middleware.
// The key mirrors middleware.ContextUserID, which cannot be imported here.
func currentUserID(c *gin.Context) uuid.UUID {
	return c.MustGet("user_id").(uuid.UUID)
}

// Me handles GET /users/me.
func (h *Handler) Me(c *gin.Context) {
	userID := currentUserID(c)
	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: user})
}

// UpdateMe handles PUT /users/me.
func (h *Handler) UpdateMe(c *gin.Context) {
	userID := currentUserID(c)
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	current, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}

	params := UpdateProfileParams{
		DisplayName:        req.DisplayName,
		Bio:                req.Bio,
		AvatarURL:          req.AvatarURL,
		Website:            req.Website,
		Language:           req.Language,
		EmailNotifications: current.EmailNotifications,
	}
	if params.Language == "" {
		params.Language = current.Language
	}
	if req.EmailNotifications != nil {
		params.EmailNotifications = *req.EmailNotifications
	}

	user, err := h.repo.UpdateProfile(c.Request.Context(), userID, params)
	if err != nil {
		response.Internal(c, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: user})
}

// VerifyEmail handles GET /auth/verify-email/:token.
func (h *Handler) VerifyEmail(c *gin.Context) {
	token := c.Param("token")
	user, err := h.repo.GetByVerificationToken(c.Request.Context(), token)
	if err != nil {
		response.NotFound(c, "invalid verification token")
		return
	}
	if err := h.repo.MarkVerified(c.Request.Context(), user.ID); err != nil {
		response.Internal(c, "failed to verify email")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: gin.H{"email": user.Email, "verified": true}})
}

// ResendVerification handles POST /auth/resend-verification.
func (h *Handler) ResendVerification(c *gin.Context) {
	userID := currentUserID(c)
	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	if user.EmailVerified {
		response.BadRequest(c, "email already verified")
		return
	}

	token, err := utils.GenerateVerificationToken()
	if err != nil {
		response.Internal(c, "failed to generate verification token")
		return
	}
	if err := h.repo.ResetVerificationToken(c.Request.Context(), user.ID, token, time.Now()); err != nil {
		response.Internal(c, "failed to reset verification token")
		return
	}
	user.VerificationToken = token

	h.sendVerificationEmail(c.Request.Context(), user)
	c.JSON(http.StatusOK, response.Body{Success: true, Data: gin.H{"sent": true}})
}

// List handles GET /users (staff only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: list})
}

func (h *Handler) sendVerificationEmail(ctx context.Context, user *models.User) {
	if h.mailer == nil {
		return
	}
	link := fmt.Sprintf("%s/auth/verify-email/%s", h.baseURL, user.VerificationToken)
	err := h.mailer.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      "verification",
		RecipientEmail: user.Email,
		Subject:        "Verify your email address",
		BodyText:       "Welcome! Confirm your email address by visiting:\n\n" + link + "\n",
	})
	if err != nil {
		h.logger.Warn("failed to enqueue verification email", zap.Error(err), zap.String("email", user.Email))
	}
}
