package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/teachpack-backend/internal/clients/redis"
	"github.com/yungbote/teachpack-backend/internal/db"
	"github.com/yungbote/teachpack-backend/internal/handlers"
	"github.com/yungbote/teachpack-backend/internal/logger"
	"github.com/yungbote/teachpack-backend/internal/middleware"
	"github.com/yungbote/teachpack-backend/internal/observability"
	"github.com/yungbote/teachpack-backend/internal/repos"
	"github.com/yungbote/teachpack-backend/internal/server"
	"github.com/yungbote/teachpack-backend/internal/services"
	"github.com/yungbote/teachpack-backend/internal/sse"
	"github.com/yungbote/teachpack-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "teachpack",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(ctx)
		}()
	}

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	workflowJobRepo := repos.NewWorkflowJobRepo(thePG, log)
	aiCallLogRepo := repos.NewAICallLogRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewSSEHub(log)

	var sseBus redis.SSEBus
	if os.Getenv("REDIS_ADDR") != "" {
		sseBus, err = redis.NewSSEBus(log)
		if err != nil {
			log.Warn("Could not init Redis SSE bus; events stay local", "error", err)
			sseBus = nil
		} else {
			if err := sseBus.StartForwarder(context.Background(), sseHub.Broadcast); err != nil {
				log.Warn("Could not start Redis SSE forwarder", "error", err)
			}
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	negotiator := services.NewNegotiator(log, openaiClient, aiCallLogRepo)
	groupingService := services.NewGroupingService(log)
	rosterService := services.NewRosterService(log)
	coverService, err := services.NewCoverService(log)
	if err != nil {
		log.Warn("Could not init CoverService; packs ship without covers", "error", err)
		coverService = nil
	}
	notifier := services.NewJobNotifier(log, sseHub, sseBus)

	authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	userService := services.NewUserService(thePG, log, userRepo)
	packService := services.NewPackGenerationService(log, workflowJobRepo, negotiator, groupingService, rosterService, coverService, notifier)
	packService.StartWorker(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	sseHandler := handlers.NewSSEHandler(log, sseHub)
	workflowHandler := handlers.NewWorkflowHandler(packService, rosterService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:     authHandler,
		AuthMiddleware:  authMiddleware,
		UserHandler:     userHandler,
		SSEHandler:      sseHandler,
		WorkflowHandler: workflowHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
