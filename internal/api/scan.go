package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/auth"
	"github.com/kmikeym/branch/internal/github"
)

// ScanHandler serves the repository scan endpoint.
type ScanHandler struct {
	repo ScanRepository
	log  *logrus.Logger
}

// NewScanHandler creates a ScanHandler with the given service and logger.
func NewScanHandler(repo ScanRepository, log *logrus.Logger) *ScanHandler {
	return &ScanHandler{repo: repo, log: log}
}

// Start handles POST /api/v1/scan: scans the logged-in user's repositories
// with their own OAuth token. Progress streams over the scan WebSocket; the
// response carries the final counts.
func (h *ScanHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, ok := auth.Session(c)
	if !ok || sess.Token == "" {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, "no GitHub token on session, log in again")

		return
	}

	result, err := h.repo.Scan(c.Request.Context(), userID, sess.Token)
	if err != nil {
		var rateErr *github.RateLimitError
		if errors.As(err, &rateErr) {
			respondError(c, http.StatusTooManyRequests, ErrCodeRateLimited, rateErr.Error())

			return
		}

		h.log.WithError(err).Error("scan failed")
		respondError(c, http.StatusBadGateway, ErrCodeInternalError, "scan failed")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":  "scan.run",
		"user_id": userID,
		"repos":   result.ReposScanned,
		"facts":   result.FactsWritten,
	}).Info("audit")

	c.JSON(http.StatusOK, result)
}
