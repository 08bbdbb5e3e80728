package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/models"
)

// TagHandler serves tag read and write endpoints.
type TagHandler struct {
	repo TagRepository
	log  *logrus.Logger
}

// NewTagHandler creates a TagHandler with the given service and logger.
func NewTagHandler(repo TagRepository, log *logrus.Logger) *TagHandler {
	return &TagHandler{repo: repo, log: log}
}

// validationError reports whether err is a request-shape problem rather than
// a storage failure.
func validationError(err error) bool {
	switch {
	case errors.Is(err, models.ErrMissingTagName),
		errors.Is(err, models.ErrMissingEntityType),
		errors.Is(err, models.ErrMissingEntityID),
		errors.Is(err, models.ErrInvalidEntityType),
		errors.Is(err, models.ErrRepoNameRequired),
		errors.Is(err, models.ErrRepoNameForbidden),
		errors.Is(err, models.ErrFieldTooLong),
		errors.Is(err, models.ErrSameTagName):
		return true
	}

	return false
}

// ListForUser handles GET /api/v1/users/:login/tags.
func (h *TagHandler) ListForUser(c *gin.Context) {
	login := c.Param("login")
	if login == "" {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "login must not be empty")

		return
	}

	tags, err := h.repo.TagsForUser(c.Request.Context(), login)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "user not found")

			return
		}

		h.log.WithError(err).Error("listing user tags")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, tags)
}

// Entities handles GET /api/v1/tags/:name/entities.
func (h *TagHandler) Entities(c *gin.Context) {
	tagName := c.Param("name")

	entities, err := h.repo.EntitiesForTag(c.Request.Context(), tagName)
	if err != nil {
		if errors.Is(err, models.ErrMissingTagName) {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

			return
		}

		h.log.WithError(err).Error("listing tagged entities")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, entities)
}

// Add handles POST /api/v1/tags.
func (h *TagHandler) Add(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req models.AddTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")

		return
	}

	fact, err := h.repo.AddTag(c.Request.Context(), req, userID)
	if err != nil {
		if validationError(err) {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

			return
		}

		h.log.WithError(err).Error("adding tag")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "tag.add",
		"tag_name":  req.TagName,
		"entity_id": req.EntityID,
		"user_id":   userID,
	}).Info("audit")

	c.JSON(http.StatusCreated, fact)
}

// Remove handles DELETE /api/v1/tags.
func (h *TagHandler) Remove(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req models.RemoveTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")

		return
	}

	err := h.repo.RemoveTag(c.Request.Context(), req, userID)
	if err != nil {
		switch {
		case validationError(err):
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		case errors.Is(err, models.ErrPermissionDenied):
			respondError(c, http.StatusForbidden, ErrCodeForbidden, "only the user who added a tag may remove it")
		case errors.Is(err, models.ErrTagNotFound):
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "tag not found")
		default:
			h.log.WithError(err).Error("removing tag")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		}

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "tag.remove",
		"tag_name":  req.TagName,
		"entity_id": req.EntityID,
		"user_id":   userID,
	}).Info("audit")

	c.Status(http.StatusNoContent)
}
