package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cardlink/pixel-tracker/internal/handler"
	"github.com/cardlink/pixel-tracker/internal/metrics"
	"github.com/cardlink/pixel-tracker/internal/middleware"
)

// registerRoutes mounts the tracking endpoint, the management API, and the
// operational endpoints.
func registerRoutes(engine *gin.Engine, deps Deps) {
	rl := deps.Config.RateLimit
	window := time.Duration(rl.WindowSeconds) * time.Second

	// Over-limit tracking requests still get the pixel; a beacon must
	// never visibly fail.
	track := engine.Group("/t")
	track.Use(middleware.BotFilter())
	track.Use(middleware.RateLimiter(rl.MaxRequestsPerMinute, window, handler.WritePixel))
	track.GET("/:pixelID", deps.Track.Handle)
	track.POST("/:pixelID", deps.Track.Handle)

	pixels := engine.Group("/api/pixels")
	pixels.Use(middleware.RateLimiter(rl.MaxRequestsPerMinute, window, nil))
	pixels.POST("", deps.Admin.Create)
	pixels.PATCH("/:pixelID/active", deps.Admin.SetActive)
	pixels.GET("/:pixelID/stats", deps.Admin.Stats)

	engine.GET("/health", deps.Health.Health)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
}
