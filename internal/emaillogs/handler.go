package emaillogs

import (
	"github.com/gin-gonic/gin"

	"github.com/openbadges/backend/pkg/response"
)

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates an email logs handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /email-logs (staff only).
func (h *Handler) List(c *gin.Context) {
	logs, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
