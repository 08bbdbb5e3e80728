package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/models"
)

// MeHandler serves the current-user endpoint.
type MeHandler struct {
	repo UserRepository
	log  *logrus.Logger
}

// NewMeHandler creates a MeHandler with the given store and logger.
func NewMeHandler(repo UserRepository, log *logrus.Logger) *MeHandler {
	return &MeHandler{repo: repo, log: log}
}

// Get handles GET /api/v1/me.
func (h *MeHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	user, err := h.repo.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "user not found")

			return
		}

		h.log.WithError(err).Error("getting current user")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, user)
}
