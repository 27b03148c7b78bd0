package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/samspacey/bsa-data/internal/api/handlers"
	"github.com/samspacey/bsa-data/internal/config"
	"github.com/samspacey/bsa-data/internal/database"
	"github.com/samspacey/bsa-data/internal/health"
	"github.com/samspacey/bsa-data/internal/inference"
	"github.com/samspacey/bsa-data/internal/middleware"
	"github.com/samspacey/bsa-data/internal/registry"
	"github.com/samspacey/bsa-data/internal/repository"
	"github.com/samspacey/bsa-data/internal/resolver"
	"github.com/samspacey/bsa-data/internal/retrieval"
	"github.com/samspacey/bsa-data/internal/services"
	"github.com/samspacey/bsa-data/internal/session"
	"github.com/samspacey/bsa-data/internal/vectorindex"
	"github.com/samspacey/bsa-data/pkg/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	utils.InitLogger()
	logger := utils.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ValidateInference(); err != nil {
		logger.WithError(err).Fatal("Inference configuration validation failed")
	}

	dbManager, err := database.NewManager(&database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if err := dbManager.Migrate(); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	repoManager := repository.NewRepositoryManager(dbManager.DB)

	orgs, err := repoManager.Organization.GetAll()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load organizations")
	}
	if len(orgs) == 0 {
		logger.Warn("No organizations found; run cmd/seed to load the catalogue")
	}
	reg := registry.New(orgs)

	inferenceClient := inference.NewClient(
		cfg.Inference.BaseURL,
		cfg.Inference.APIKey,
		cfg.Inference.Model,
		cfg.Inference.EmbedModel,
		logger,
	)

	index, err := vectorIndex(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize vector index")
	}

	var sessions session.Store
	ttl := time.Duration(cfg.Sessions.TTLMinutes) * time.Minute
	switch cfg.Sessions.Backend {
	case "redis":
		sessions = session.NewRedisStore(dbManager.Redis, ttl, logger)
		logger.Info("Using redis session store")
	default:
		sessions = session.NewMemoryStore(ttl)
		logger.Info("Using in-memory session store")
	}

	intentResolver := resolver.NewResolver(inferenceClient, reg, logger)
	retrievalService := retrieval.NewService(
		repoManager.Metric,
		repoManager.Review,
		repoManager.DataSource,
		index,
		inferenceClient,
		reg,
		logger,
	)
	chatService := services.NewChatService(intentResolver, retrievalService, inferenceClient, sessions, logger)

	checker := health.NewHealthChecker(
		dbManager,
		repoManager.SystemHealth,
		index,
		cfg.Inference.BaseURL,
		cfg.Inference.APIKey,
		logger,
	)

	chatHandler := handlers.NewChatHandler(chatService, logger)
	healthHandler := handlers.NewHealthHandler(checker, logger)
	router := setupRouter(chatHandler, healthHandler)

	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()
	go checker.PeriodicHealthCheck(backgroundCtx, 5*time.Minute)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	cancelBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}
	logger.Info("Server stopped")
}

func vectorIndex(cfg *config.Config, logger *logrus.Logger) (*vectorindex.QdrantIndex, error) {
	index, err := vectorindex.NewQdrantIndex(
		cfg.Qdrant.Host,
		cfg.Qdrant.Port,
		cfg.Qdrant.Collection,
		cfg.Qdrant.VectorDim,
		logger,
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := index.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return index, nil
}

func setupRouter(chatHandler *handlers.ChatHandler, healthHandler *handlers.HealthHandler) *gin.Engine {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())

	router.GET("/health", healthHandler.HandleHealth)

	rateLimiter := middleware.NewRateLimiter(60)
	api := router.Group("/api/v1")
	api.Use(rateLimiter.RateLimit())
	{
		api.POST("/chat", chatHandler.HandleChat)
		api.POST("/chat/reset", chatHandler.HandleReset)
	}

	return router
}
