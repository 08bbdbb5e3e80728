// Package httputil holds response helpers shared by the api and middleware
// packages.
package httputil

import "github.com/gin-gonic/gin"

// RespondError writes the error envelope every endpoint uses and aborts the
// chain. The request ID is attached when the RequestID middleware has run.
func RespondError(c *gin.Context, status int, code, message string) {
	body := gin.H{
		"code":    code,
		"message": message,
	}

	if id := c.GetString("request_id"); id != "" {
		body["request_id"] = id
	}

	c.AbortWithStatusJSON(status, body)
}
