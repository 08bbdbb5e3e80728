package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kmikeym/branch/internal/httputil"
	"github.com/kmikeym/branch/internal/metrics"
)

// respondError writes a standardized JSON error response and records the
// error metric.
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}
