package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "backoffice/api/swagger" // swagger docs
	"backoffice/internal/apperr"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/extractor"
	"backoffice/internal/handler"
	"backoffice/internal/middleware"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/storage"
	"backoffice/internal/validation"
	"backoffice/internal/websocket"
	"backoffice/pkg/logger"
	"backoffice/pkg/response"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	principalCacheTTL = time.Minute
	shutdownTimeout   = 15 * time.Second
)

// @title           Accounting Back Office API
// @version         1.0
// @description     Multi-tenant document processing, reconciliation and contract services.
// @BasePath        /
// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name auth-token
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := validation.Register(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	db, err := database.NewConnection(cfg.Database, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	slog.Info("database ready")

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("object storage unavailable: %w", err)
	}

	var ex extractor.Extractor
	client, err := extractor.New(cfg.Extraction)
	switch {
	case errors.Is(err, extractor.ErrNotConfigured):
		slog.Warn("EXTRACTION_API_URL is empty, extraction attempts will fail permanently")
		ex = extractor.Unconfigured{}
	case err != nil:
		return fmt.Errorf("failed to create extractor: %w", err)
	default:
		ex = client
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(cfg.HTTP.CORSOrigins)
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	companyRepo := repository.NewCompanyRepository(db)
	contactRepo := repository.NewContactRepository(db)
	tagRepo := repository.NewTagRepository(db)
	taxCodeRepo := repository.NewTaxCodeRepository(db)
	contractRepo := repository.NewContractRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	revisionRepo := repository.NewRevisionRepository(db)
	statisticsRepo := repository.NewStatisticsRepository(db)

	cache := service.NewPrincipalCache(principalCacheTTL)
	auditService := service.NewAuditService(auditRepo)
	roleService := service.NewRoleService(roleRepo, auditService, txManager, cache)
	authService := service.NewAuthService(userRepo, tenantRepo, auditService, cache, cfg.Auth)
	userService := service.NewUserService(userRepo, roleRepo, companyRepo, auditService, txManager, cache)
	tenantService := service.NewTenantService(tenantRepo, userRepo, roleService, auditService, txManager, cache)
	companyService := service.NewCompanyService(companyRepo, auditService, txManager)
	contactService := service.NewContactService(contactRepo, companyRepo, auditService, txManager)
	tagService := service.NewTagService(tagRepo, companyRepo, auditService, txManager)
	taxService := service.NewTaxService(taxCodeRepo, auditService, txManager)
	contractService := service.NewContractService(contractRepo, companyRepo, contactRepo, auditService, txManager)
	extractionService := service.NewExtractionService(
		documentRepo, revisionRepo, companyRepo, contactRepo, taxCodeRepo,
		ex, store, auditService, txManager, wsHub,
		service.ExtractionOptions{MaxAttempts: cfg.Extraction.MaxAttempts, Timeout: cfg.Extraction.Timeout},
	)
	documentService := service.NewDocumentService(
		documentRepo, revisionRepo, tagRepo, companyRepo,
		store, extractionService, auditService, txManager, wsHub, cfg.HTTP.UploadMaxBytes,
	)
	revisionService := service.NewRevisionService(documentRepo, revisionRepo, companyRepo, contactRepo, taxCodeRepo, auditService, txManager, wsHub)
	exportService := service.NewExportService(documentRepo, auditService)
	statisticsService := service.NewStatisticsService(statisticsRepo)

	if err := roleService.SeedPermissions(ctx); err != nil {
		return err
	}
	if err := userService.EnsureSuperAdmin(ctx, cfg.Bootstrap.SuperAdminEmail, cfg.Bootstrap.SuperAdminPassword); err != nil {
		return err
	}

	if err := extractionService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start extraction workers: %w", err)
	}

	apiLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	loginLimiter := middleware.NewRateLimiter(cfg.RateLimit.LoginRequests, cfg.RateLimit.Window)
	go apiLimiter.Sweep(ctx)
	go loginLimiter.Sweep(ctx)

	auth := middleware.NewAuth(authService, cfg.Auth)

	// Initialize Handlers
	authHandler := handler.NewAuthHandler(authService, auth, loginLimiter)
	protectedHandlers := []interface{ RegisterRoutes(*gin.RouterGroup) }{
		handler.NewTenantHandler(tenantService),
		handler.NewUserHandler(userService),
		handler.NewRoleHandler(roleService),
		handler.NewCompanyHandler(companyService, contactService),
		handler.NewTagHandler(tagService),
		handler.NewDocumentHandler(documentService, revisionService, exportService, cfg.HTTP.UploadMaxBytes),
		handler.NewContractHandler(contractService),
		handler.NewAuditHandler(auditService),
		handler.NewTaxHandler(taxService),
		handler.NewStatisticsHandler(statisticsService),
	}

	// Set up Gin Router
	router := gin.New()
	router.MaxMultipartMemory = 8 << 20
	router.Use(middleware.RequestContext(), middleware.RequestLogger(), middleware.Recovery())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.TenantHeader, middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "Retry-After", middleware.RequestIDHeader, "X-Export-Rows"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	if !cfg.IsProduction() {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, response.Error(string(apperr.CodeServiceUnavailable), "database unreachable"))
			return
		}
		c.JSON(http.StatusOK, response.Success(gin.H{"status": "OK"}))
	})

	// API Routing
	authHandler.RegisterRoutes(router.Group(""))

	protected := router.Group("", auth.RequireAuth(), apiLimiter.Middleware("api"))
	protected.GET("/ws", wsHub.ServeWs)
	for _, h := range protectedHandlers {
		h.RegisterRoutes(protected)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		_ = extractionService.Wait()
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	if err := extractionService.Wait(); err != nil {
		slog.Error("extraction workers stopped with error", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
