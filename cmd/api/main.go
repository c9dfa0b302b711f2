package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/afetnet/mesh-registry-api/api/swagger"
	"github.com/afetnet/mesh-registry-api/internal/handler"
	"github.com/afetnet/mesh-registry-api/internal/middleware"
	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/internal/repository"
	"github.com/afetnet/mesh-registry-api/internal/service"
	"github.com/afetnet/mesh-registry-api/internal/token"
	"github.com/afetnet/mesh-registry-api/pkg/cache"
	"github.com/afetnet/mesh-registry-api/pkg/config"
	"github.com/afetnet/mesh-registry-api/pkg/database"
	"github.com/afetnet/mesh-registry-api/pkg/jobs"
	"github.com/afetnet/mesh-registry-api/pkg/logger"
	corsmiddleware "github.com/afetnet/mesh-registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/afetnet/mesh-registry-api/pkg/middleware/requestid"
	"github.com/afetnet/mesh-registry-api/pkg/nationalid"
	"github.com/afetnet/mesh-registry-api/pkg/storage"
)

// @title AfetNet Mesh Registry API
// @version 1.0.0
// @description Citizen and gateway-device registry for the disaster-resilience mesh network
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Auth.DevSecrets {
		logr.Warn("RUNNING WITH DEVELOPMENT TOKEN SECRETS - tokens are forgeable, never deploy like this",
			zap.String("env", cfg.Env))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, gateway list caching disabled", zap.Error(err))
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Gateways.CacheTTL, logr, true)
	}

	validate := validator.New()
	issuer := token.NewIssuer(cfg.Auth)
	verifier := token.NewVerifier(cfg.Auth)

	userRepo := repository.NewUserRepository(db)
	gatewayRepo := repository.NewGatewayRepository(db)
	issueRepo := repository.NewIssueRepository(db)

	authSvc := service.NewAuthService(userRepo, issuer, verifier, validate, nationalid.Valid, metricsSvc, logr, cfg.Auth.BcryptCost)
	gatewaySvc := service.NewGatewayService(gatewayRepo, cacheSvc, metricsSvc, validate, logr, cfg.Gateways.CacheTTL)
	issueSvc := service.NewIssueService(issueRepo, metricsSvc, validate, logr, cfg.Issues.ExportEnabled)

	reportStore, err := storage.NewLocalStorage(cfg.Reports.OutputDir)
	if err != nil {
		logr.Fatal("failed to prepare report output directory", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SigningSecret, cfg.Reports.DownloadTTL)
	exportSvc := service.NewExportService(issueRepo, gatewayRepo, reportStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.ResultTTL,
	}, logr, nil, nil)

	reportRepo := repository.NewReportRepository(db)
	// Worker and queue share one retry budget, so the attempt that the
	// worker persists as FAILED is also the one the queue stops replaying.
	reportWorker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.MaxRetries, logr)
	reportQueue := jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.Workers,
		MaxRetries: cfg.Reports.MaxRetries,
		Logger:     logr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reportQueue.Start(ctx)
	defer reportQueue.Stop()

	reportSvc := service.NewReportService(reportRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.ResultTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)

	authHandler := handler.NewAuthHandler(authSvc, cfg)
	gatewayHandler := handler.NewGatewayHandler(gatewaySvc)
	issueHandler := handler.NewIssueHandler(issueSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.Authenticate(authSvc), authHandler.Logout)
	auth.POST("/change-password", middleware.Authenticate(authSvc), authHandler.ChangePassword)
	auth.GET("/me", middleware.Authenticate(authSvc), authHandler.Me)

	gateways := api.Group("/gateways", middleware.Authenticate(authSvc))
	gateways.POST("", gatewayHandler.Create)
	gateways.GET("", gatewayHandler.List)
	gateways.GET("/:id", gatewayHandler.Get)
	gateways.PUT("/:id", gatewayHandler.Update)
	gateways.DELETE("/:id", gatewayHandler.Delete)

	issues := api.Group("/issues", middleware.Authenticate(authSvc))
	issues.POST("", issueHandler.Create)
	issues.GET("", issueHandler.List)
	issues.GET("/export", middleware.RequireRoles(models.RoleAdmin), issueHandler.Export)
	issues.GET("/:id", issueHandler.Get)
	issues.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin), issueHandler.Transition)

	reports := api.Group("/reports")
	reports.POST("", middleware.Authenticate(authSvc), middleware.RequireRoles(models.RoleAdmin), reportHandler.Create)
	reports.GET("/:id", middleware.Authenticate(authSvc), middleware.RequireRoles(models.RoleAdmin), reportHandler.Status)
	// Downloads carry their own signed token, so no session is required.
	reports.GET("/download/:token", reportHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}
