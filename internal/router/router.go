package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/handler"
	"github.com/stemsi/algoprep-backend/internal/metrics"
	"github.com/stemsi/algoprep-backend/internal/middleware"
	"github.com/stemsi/algoprep-backend/internal/response"
	"github.com/stemsi/algoprep-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Interview *handler.InterviewHandler
	Practice  *handler.PracticeHandler
	WS        *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Timezone"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// promhttp negotiates its own compression.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		SkipPaths: []string{"/metrics"},
	}))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Starting interviews is expensive (question load, DB row, timers).
	startLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ─── 1. Interview Group (JWT) ──────────────────────────────────────
	interviews := router.Group("/api/v1/interviews")
	interviews.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		interviews.GET("", handlers.Interview.ListInterviews)
		interviews.POST("", startLimiter.Middleware(), handlers.Interview.StartInterview)
		interviews.GET("/active", handlers.Interview.GetActiveInterview)
		interviews.POST("/:id/end", handlers.Interview.EndInterview)
		interviews.GET("/:id/results", handlers.Interview.GetInterviewResults)
	}

	// ─── 2. Practice Group (JWT) ───────────────────────────────────────
	practice := router.Group("/api/v1/practice")
	practice.Use(middleware.RequireJWT(authService))
	{
		practice.POST("/questions/:question_id/solve", handlers.Practice.MarkSolved)
		practice.GET("/questions/:question_id/draft", handlers.Practice.GetDraft)
		practice.GET("/reviews/due", handlers.Practice.GetDueReviews)
		practice.GET("/progress", handlers.Practice.GetProgress)
	}

	// ─── 3. WebSocket Group (Query Token Auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/interviews/:id/stream", handlers.WS.InterviewStream)
		ws.GET("/practice/questions/:question_id/editor", handlers.WS.PracticeEditor)
	}

	return router
}
