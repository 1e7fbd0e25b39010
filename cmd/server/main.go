package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/api"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/config"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/repository"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/service"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/websocket"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/database"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/distributed"
	jwtutil "github.com/PubNubDevelopers/SBMM-Engine/pkg/jwt"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/logger"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/metrics"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/ratelimit"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/retry"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting SBMM engine",
		"port", cfg.Port,
		"env", cfg.Env,
		"store", cfg.Store,
		"transport", cfg.Transport,
		"regions", cfg.Regions,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsManager := metrics.NewManager()
	clk := clock.New()
	policy := retry.Policy{
		Attempts:   cfg.RetryAttempts,
		Delay:      cfg.RetryDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		Timeout:    cfg.IOTimeout,
		Classifier: retry.IsTransient,
		Logger:     logger.Named("retry"),
		OnRetry: func(op string, attempt uint, err error) {
			metricsManager.IncRetry(op)
		},
	}

	// Redis 연결 (store/transport 중 하나라도 Redis 면)
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid redis url", "error", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.IOTimeout)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		logger.Info("Redis connection established")
	}

	// 플레이어 저장소
	var players repository.PlayerRepository
	switch cfg.Store {
	case config.BackendRedis:
		players = repository.NewRedisPlayerRepository(redisClient)
	case config.BackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		repo := repository.NewPostgresPlayerRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare player schema", "error", err)
		}
		players = repo
		logger.Info("Database connection established")
	default:
		players = repository.NewMemoryPlayerRepository()
	}

	// presence / 토픽 전송
	var tr transport.Transport
	switch cfg.Transport {
	case config.BackendRedis:
		tr = distributed.NewRedisTransport(redisClient, logger.Named("transport"))
	default:
		broker := transport.NewMemoryBroker(logger.Named("transport"))
		defer broker.Close()
		tr = broker
	}

	initial, err := cfg.Constraints()
	if err != nil {
		logger.Fatal("Invalid constraint defaults", "error", err)
	}
	constraints := service.NewConstraintStore(initial, logger.Named("constraints"))
	latency := service.NewLatencyTable(logger.Named("latency"))

	go func() {
		if err := constraints.Subscribe(ctx, tr); err != nil {
			logger.Error("Control feed stopped", "error", err)
		}
	}()
	go func() {
		if err := latency.Run(ctx, tr); err != nil {
			logger.Error("Latency feed stopped", "error", err)
		}
	}()

	coordinator := service.NewCoordinator(service.CoordinatorConfig{
		Transport: tr,
		Players:   players,
		Clock:     clk,
		Window:    cfg.ConfirmWindow,
		Retry:     policy,
		Metrics:   metricsManager,
		Logger:    logger.Named("confirmation"),
	})
	games := service.NewGameService(service.GameConfig{
		Transport:   tr,
		Players:     players,
		Constraints: constraints,
		Clock:       clk,
		Retry:       policy,
		Metrics:     metricsManager,
		Logger:      logger.Named("game"),
		MinDuration: cfg.MatchDurationMin,
		MaxDuration: cfg.MatchDurationMax,
		Drift:       cfg.RatingDrift,
	})

	matchmakingCfg := service.MatchmakingConfig{
		Transport:      tr,
		Players:        players,
		Matcher:        service.NewMatcher(service.NewScorer(latency), logger.Named("matcher")),
		Constraints:    constraints,
		Coordinator:    coordinator,
		Games:          games,
		Clock:          clk,
		Retry:          policy,
		Metrics:        metricsManager,
		Logger:         logger.Named("scheduler"),
		Regions:        cfg.Regions,
		Interval:       cfg.TickInterval,
		Cooldown:       cfg.Cooldown,
		PunishCooldown: cfg.PunishCooldown,
		CandidateLimit: cfg.CandidateLimit,
		TickOnStart:    true,
	}
	if redisClient != nil {
		// 여러 인스턴스가 같은 Redis 를 보면 틱은 한 곳에서만
		matchmakingCfg.Locker = distributed.NewTickLease(redisClient, cfg.TickLeaseTTL)
	}
	matchmaking := service.NewMatchmakingService(matchmakingCfg)
	if err := matchmaking.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", "error", err)
	}
	defer matchmaking.Stop()

	// WebSocket Hub 초기화 및 시작
	hub := websocket.NewHub(websocket.HubConfig{
		Transport: tr,
		Confirmer: matchmaking,
		Latency:   latency,
		Logger:    logger.Named("websocket"),
	})
	go hub.Run(ctx)

	deps := api.Dependencies{
		Config:      cfg,
		Matchmaking: matchmaking,
		Constraints: constraints,
		Players:     players,
		Transport:   tr,
		Hub:         hub,
		Metrics:     metricsManager,
	}
	if cfg.JWTSecret != "" {
		deps.JWT = jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	} else {
		logger.Warn("JWT secret not set, authentication disabled")
	}
	if redisClient != nil {
		deps.RedisLimiter = ratelimit.NewRedisRateLimiter(redisClient, ratelimit.RedisRateLimiterConfig{})
	} else {
		limiter := ratelimit.NewRateLimiter(cfg.RateLimitBurst, cfg.RateLimitPerSecond, clk)
		defer limiter.Stop()
		deps.Limiter = limiter
	}

	// 라우터 설정
	router := api.SetupRouter(deps)

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 10초 타임아웃으로 종료
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// 스케줄러 / 피드 종료는 defer 순서대로
	cancel()
	logger.Info("Server exited")
}
