package api

import (
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/api/handlers"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/api/middleware"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/config"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/repository"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/service"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/websocket"
	jwtutil "github.com/PubNubDevelopers/SBMM-Engine/pkg/jwt"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/metrics"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/ratelimit"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/gin-gonic/gin"
)

// Dependencies 라우터가 사용하는 서비스
type Dependencies struct {
	Config      *config.Config
	Matchmaking *service.MatchmakingService
	Constraints *service.ConstraintStore
	Players     repository.PlayerRepository
	Transport   transport.Transport
	Hub         *websocket.Hub
	Metrics     *metrics.Manager

	// JWT 가 nil 이면 인증 없이 동작
	JWT *jwtutil.JWTManager

	// 둘 중 하나. Redis 가 있으면 인스턴스 간 공유 한도.
	Limiter      *ratelimit.RateLimiter
	RedisLimiter *ratelimit.RedisRateLimiter
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

	// Handler 초기화
	healthHandler := handlers.NewHealthHandler(deps.Matchmaking)
	matchmakingHandler := handlers.NewMatchmakingHandler(deps.Matchmaking)
	constraintHandler := handlers.NewConstraintHandler(deps.Constraints, deps.Transport)
	playerHandler := handlers.NewPlayerHandler(deps.Players)
	authHandler := handlers.NewAuthHandler(deps.Players, deps.JWT)

	// Health check / metrics
	router.GET("/health", healthHandler.HealthCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	auth := middleware.Auth(deps.JWT)

	// API v1
	v1 := router.Group("/api/v1")
	if limit := rateLimit(deps); limit != nil {
		v1.Use(limit)
	}
	{
		// 토큰 발급 (인증 불필요)
		v1.POST("/auth/token", authHandler.IssueToken)

		players := v1.Group("/players")
		{
			players.POST("", playerHandler.CreatePlayer)
			players.GET("/:id", playerHandler.GetPlayer)
		}

		// 후보 조회
		v1.POST("/matchmaking", auth, matchmakingHandler.RequestCandidates)

		queue := v1.Group("/queue")
		{
			queue.GET("", matchmakingHandler.ListRegions)
			queue.GET("/:region", matchmakingHandler.GetQueue)
			queue.POST("", auth, matchmakingHandler.JoinQueue)
			queue.DELETE("/:region", auth, matchmakingHandler.LeaveQueue)
		}

		v1.POST("/matches/:matchId/confirm", auth, matchmakingHandler.ConfirmMatch)

		constraints := v1.Group("/constraints")
		{
			constraints.GET("", constraintHandler.GetConstraints)
			constraints.PATCH("", auth, constraintHandler.UpdateConstraints)
		}

		// WebSocket route
		if deps.Hub != nil {
			wsHandler := handlers.NewWebSocketHandler(deps.Hub)
			v1.GET("/ws", auth, wsHandler.HandleWebSocket)
		}
	}

	return router
}

func rateLimit(deps Dependencies) gin.HandlerFunc {
	switch {
	case deps.RedisLimiter != nil:
		return middleware.RedisRateLimitMiddleware(middleware.RedisRateLimitConfig{
			Limiter: deps.RedisLimiter,
			Limit:   int(deps.Config.RateLimitPerSecond * 60),
			Window:  time.Minute,
		})
	case deps.Limiter != nil:
		return middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Limiter: deps.Limiter,
		})
	}
	return nil
}
