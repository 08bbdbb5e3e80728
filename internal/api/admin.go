package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/auth"
	"github.com/kmikeym/branch/internal/models"
)

// AdminHandler serves operator-only endpoints: tag renames and manual
// migration runs.
type AdminHandler struct {
	repo TagRepository
	log  *logrus.Logger
}

// NewAdminHandler creates an AdminHandler with the given service and logger.
func NewAdminHandler(repo TagRepository, log *logrus.Logger) *AdminHandler {
	return &AdminHandler{repo: repo, log: log}
}

// RequireAdmin gates a route group behind the configured admin login list.
func RequireAdmin(isAdmin func(login string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		login, ok := auth.Login(c)
		if !ok || !isAdmin(login) {
			respondError(c, http.StatusForbidden, ErrCodeForbidden, "admin access required")

			return
		}

		c.Next()
	}
}

// RenameTag handles POST /api/v1/admin/tags/rename.
func (h *AdminHandler) RenameTag(c *gin.Context) {
	var req models.RenameTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")

		return
	}

	renamed, merged, err := h.repo.RenameTag(c.Request.Context(), req)
	if err != nil {
		if validationError(err) {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

			return
		}

		h.log.WithError(err).Error("renaming tag")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":   "tag.rename",
		"old_name": req.OldName,
		"new_name": req.NewName,
		"renamed":  renamed,
		"merged":   merged,
	}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"renamed": renamed, "merged": merged})
}

// MigrateTags handles POST /api/v1/admin/migrate-tags. The migration guard
// makes repeat calls no-ops, so this is safe to retry.
func (h *AdminHandler) MigrateTags(c *gin.Context) {
	result, err := h.repo.RunMigration(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("running tag migration")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, result)
}
