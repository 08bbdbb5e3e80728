package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/auth"
	"github.com/kmikeym/branch/internal/dbpool"
	"github.com/kmikeym/branch/internal/middleware"
	"github.com/kmikeym/branch/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	Pool        *dbpool.Pool
	Hub         *ws.Hub
	Auth        *auth.Handler
	Tags        TagRepository
	Scans       ScanRepository
	Users       UserRepository
	IsAdmin     func(login string) bool
	CORSOrigins []string
	StaticDir   string
	Version     string
}

// Router-level limits.
const (
	maxBodySize = 1 << 20 // 1 MB; tag payloads are small
	rateLimit   = 50      // requests per second per IP
	rateBurst   = 100     // token bucket burst size
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: true,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())
	r.Use(middleware.Prometheus())

	// Metrics endpoint (unauthenticated, like health).
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all route handlers.
func registerRoutes(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.Pool, log, deps.Version)
	tags := NewTagHandler(deps.Tags, log)
	scan := NewScanHandler(deps.Scans, log)
	admin := NewAdminHandler(deps.Tags, log)
	stats := NewStatsHandler(deps.Tags, log)
	me := NewMeHandler(deps.Users, log)

	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)

	// OAuth flow.
	r.GET("/auth/login", deps.Auth.Login)
	r.GET("/auth/callback", deps.Auth.Callback)
	r.GET("/auth/logout", deps.Auth.Logout)

	api := r.Group("/api/v1")

	// Reads are public; the session is resolved when present so logging
	// can attribute requests.
	public := api.Group("", deps.Auth.OptionalUser())
	public.GET("/users/:login/tags", tags.ListForUser)
	public.GET("/tags/:name/entities", tags.Entities)
	public.GET("/stats", stats.GetStats)

	// Writes require a login.
	authed := api.Group("", deps.Auth.RequireUser())
	authed.GET("/me", me.Get)
	authed.POST("/scan", scan.Start)
	authed.POST("/tags", tags.Add)
	authed.DELETE("/tags", tags.Remove)
	authed.GET("/ws/scan", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins))

	// Admin operations.
	adminGroup := authed.Group("/admin", RequireAdmin(deps.IsAdmin))
	adminGroup.POST("/tags/rename", admin.RenameTag)
	adminGroup.POST("/migrate-tags", admin.MigrateTags)

	// Dashboard static files, when bundled.
	if deps.StaticDir != "" {
		r.NoRoute(staticHandler(deps.StaticDir))
	}
}

// staticHandler serves dashboard files for unmatched routes, falling back to
// a 404 for API paths.
func staticHandler(dir string) gin.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "not found")

			return
		}

		fs.ServeHTTP(c.Writer, c.Request)
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r, deps)

	return r
}
