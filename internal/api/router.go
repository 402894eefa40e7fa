package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/api/handlers"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/api/middleware"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/config"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/service"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/websocket"
	jwtutil "github.com/hanningtontech/nurse-connect-app-sub000/pkg/jwt"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/ratelimit"
)

// Dependencies 라우터가 사용하는 서비스 묶음 (cmd/server 에서 조립)
type Dependencies struct {
	Config        *config.Config
	JWT           *jwtutil.JWTManager
	Matches       *service.MatchService
	Coordinator   *service.TurnCoordinator
	Matchmaking   *service.MatchmakingService
	Hub           *websocket.Hub
	AnswerLimiter *ratelimit.RateLimiter
	AuthLimiter   *ratelimit.RateLimiter
	HealthChecks  map[string]handlers.HealthCheckFunc
}

// SetupRouter API 라우터 설정
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	authHandler := handlers.NewAuthHandler(deps.JWT)
	matchmakingHandler := handlers.NewMatchmakingHandler(deps.Matchmaking)
	matchHandler := handlers.NewMatchHandler(deps.Matches, deps.Coordinator)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Matches, cfg.CORSAllowedOrigins)
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)

	requireAuth := middleware.Auth(deps.JWT)

	// Health check
	router.GET("/health", healthHandler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/guest", middleware.AuthRateLimit(deps.AuthLimiter), authHandler.Guest)
		}

		matchmaking := v1.Group("/matchmaking", requireAuth)
		{
			matchmaking.POST("/find", matchmakingHandler.Find)
			matchmaking.GET("/available", matchmakingHandler.Available)
			matchmaking.POST("/queue", matchmakingHandler.Queue)
			matchmaking.DELETE("/queue/:ticketId", matchmakingHandler.CancelTicket)
			matchmaking.POST("/tickets", matchmakingHandler.CreateTicket)
			matchmaking.GET("/tickets/:ticketId/match", matchmakingHandler.WaitTicket)
		}

		matches := v1.Group("/matches", requireAuth)
		{
			matches.GET("/:id", matchHandler.GetMatch)
			matches.GET("/:id/question", matchHandler.Question)
			matches.POST("/:id/join", matchHandler.Join)
			matches.POST("/:id/ready", matchHandler.Ready)
			matches.POST("/:id/answer", middleware.AnswerRateLimit(deps.AnswerLimiter), matchHandler.Answer)
			matches.POST("/:id/next", matchHandler.Next)
			matches.POST("/:id/leave", matchHandler.Leave)
			matches.GET("/:id/ws", wsHandler.HandleWebSocket)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		c.AllowAllOrigins = true
		return c
	}

	c.AllowOrigins = origins
	return c
}
