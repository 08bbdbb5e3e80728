package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/auth"
	"github.com/kmikeym/branch/internal/models"
)

const (
	testUserID = int64(42)
	testLogin  = "octocat"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

// newTestRouter creates a gin engine with a logged-in test user attached.
func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.CtxUserID, testUserID)
		c.Set(auth.CtxLogin, testLogin)
		c.Set(auth.CtxSession, &models.Session{ID: "test", UserID: testUserID, Token: "gho_test"})
		c.Next()
	})

	return r
}

// newAnonRouter creates a gin engine with no session attached.
func newAnonRouter() *gin.Engine {
	return gin.New()
}

// doRequest performs an HTTP request against the test router and returns the recorder.
func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}
