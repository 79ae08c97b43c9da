package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pixellab-dev/invigilo/internal/config"
	"github.com/pixellab-dev/invigilo/internal/handler"
	"github.com/pixellab-dev/invigilo/internal/middleware"
	"github.com/pixellab-dev/invigilo/internal/response"
	"github.com/pixellab-dev/invigilo/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so every response carries metadata.
	router.Use(response.RequestIDMiddleware())

	// Compression is global; the middleware skips WebSocket upgrades.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Session starts run bcrypt on the access code; keep the budget tight.
	startLimiter := middleware.NewRateLimiter(20, time.Minute)

	// ─── 1. Builder Group (API Key) ────────────────────────────────────
	builderAPI := router.Group("/api/v1")
	builderAPI.Use(middleware.RequireBuilderKey(cfg.BuilderAPIKey))
	{
		builderAPI.GET("/exams", handlers.Exam.ListExams)
		builderAPI.POST("/exams", handlers.Exam.CreateExam)
		builderAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		builderAPI.PUT("/exams/:exam_id", handlers.Exam.UpdateExam)
		builderAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		builderAPI.POST("/exams/:exam_id/publish", handlers.Exam.PublishExam)
		builderAPI.POST("/exams/:exam_id/archive", handlers.Exam.ArchiveExam)
		builderAPI.GET("/exams/:exam_id/attempts", handlers.Exam.ListAttempts)
		builderAPI.GET("/attempts/:attempt_id/result", handlers.Exam.GetAttemptResult)
	}

	// ─── 2. Candidate Group ────────────────────────────────────────────
	// The start endpoint is public apart from the exam access code; it mints
	// the session token the rest of the group requires.
	router.POST("/api/v1/exams/:exam_id/sessions",
		startLimiter.Middleware(), handlers.Session.StartSession)

	sessionAPI := router.Group("/api/v1/sessions")
	sessionAPI.Use(middleware.RequireSessionJWT(authService))
	{
		sessionAPI.GET("/:session_id", handlers.Session.GetSession)
		sessionAPI.POST("/:session_id/submit", handlers.Session.SubmitSession)
		sessionAPI.GET("/:session_id/result", handlers.Session.GetSessionResult)
	}

	// ─── 3. WebSocket Group (Session WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireSessionWSAuth(authService))
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
