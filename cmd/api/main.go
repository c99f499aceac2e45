package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/mksu-dev/clearance-api/api/swagger"
	"github.com/mksu-dev/clearance-api/internal/handler"
	"github.com/mksu-dev/clearance-api/internal/middleware"
	"github.com/mksu-dev/clearance-api/internal/models"
	"github.com/mksu-dev/clearance-api/internal/repository"
	"github.com/mksu-dev/clearance-api/internal/service"
	"github.com/mksu-dev/clearance-api/pkg/cache"
	"github.com/mksu-dev/clearance-api/pkg/config"
	"github.com/mksu-dev/clearance-api/pkg/database"
	"github.com/mksu-dev/clearance-api/pkg/export"
	"github.com/mksu-dev/clearance-api/pkg/logger"
	"github.com/mksu-dev/clearance-api/pkg/mailer"
	corsmiddleware "github.com/mksu-dev/clearance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mksu-dev/clearance-api/pkg/middleware/requestid"
	"github.com/mksu-dev/clearance-api/pkg/storage"
)

// @title Graduation Clearance API
// @version 1.0.0
// @description University graduation clearance workflow API
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	evidenceStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	evidenceSigner := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	clearanceRepo := repository.NewClearanceRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	metricsSvc := service.NewMetricsService()

	auditSvc := service.NewAuditService(auditRepo, cfg.Audit.Workers, cfg.Audit.BufferSize, logr)
	notificationSvc := service.NewNotificationService(
		notificationRepo, userRepo, mailer.New(cfg.SMTP), cfg.Notifications.EmailOn,
		cfg.Notifications.Workers, cfg.Notifications.BufferSize, logr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditSvc.Start(ctx)
	defer auditSvc.Stop()
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	authSvc := service.NewAuthService(userRepo, auditSvc, nil, logr, service.AuthConfig{
		Secret:             cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	departmentSvc := service.NewDepartmentService(departmentRepo, cacheRepo, cfg.Registry.CacheTTL, auditSvc, nil, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, auditSvc, nil, logr)
	userSvc := service.NewUserService(userRepo, departmentRepo, auditSvc, nil, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, studentRepo, notificationSvc, auditSvc, nil, logr)
	clearanceSvc := service.NewClearanceService(
		clearanceRepo, departmentSvc, studentRepo, paymentRepo, userRepo,
		export.NewCertificateRenderer("Machakos University"),
		cacheRepo, cfg.Statistics.CacheTTL,
		notificationSvc, auditSvc, nil, logr,
	)
	approvalSvc := service.NewApprovalService(
		approvalRepo, clearanceRepo, studentRepo, userRepo,
		evidenceStore, evidenceSigner, cfg.Evidence.MaxFileSizeBytes,
		metricsSvc, notificationSvc, auditSvc, nil, logr,
	)

	authHandler := handler.NewAuthHandler(authSvc)
	departmentHandler := handler.NewDepartmentHandler(departmentSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	userHandler := handler.NewUserHandler(userSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	clearanceHandler := handler.NewClearanceHandler(clearanceSvc, studentSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
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
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	// Signed download, authenticated by the token itself.
	api.GET("/evidence", approvalHandler.DownloadEvidence)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staffOrAdmin := middleware.RequireRoles(models.RoleAdmin, models.RoleDepartmentStaff)

	departments := protected.Group("/departments")
	{
		departments.GET("", departmentHandler.List)
		departments.GET("/sequence", departmentHandler.Sequence)
		departments.GET("/:id", departmentHandler.Get)
		departments.POST("", adminOnly, departmentHandler.Create)
		departments.PUT("/:id", adminOnly, departmentHandler.Update)
		departments.DELETE("/:id", adminOnly, departmentHandler.Deactivate)
	}

	students := protected.Group("/students")
	{
		students.GET("", staffOrAdmin, studentHandler.List)
		students.GET("/me", studentHandler.Me)
		students.GET("/:id", staffOrAdmin, studentHandler.Get)
		students.POST("", adminOnly, studentHandler.Create)
		students.PUT("/:id", adminOnly, studentHandler.Update)
		students.PUT("/:id/eligibility", adminOnly, studentHandler.SetEligibility)
	}

	users := protected.Group("/users", adminOnly)
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", userHandler.Create)
		users.PUT("/:id", userHandler.Update)
	}

	payments := protected.Group("/payments")
	{
		payments.POST("", paymentHandler.Record)
		payments.POST("/:id/verify", staffOrAdmin, paymentHandler.Verify)
		payments.GET("/students/:studentId", paymentHandler.StudentStatus)
	}

	clearances := protected.Group("/clearance-requests")
	{
		clearances.GET("", clearanceHandler.List)
		clearances.GET("/statistics", staffOrAdmin, clearanceHandler.Statistics)
		clearances.GET("/:id", clearanceHandler.Get)
		clearances.GET("/:id/progress", clearanceHandler.Progress)
		clearances.GET("/:id/certificate", clearanceHandler.Certificate)
		clearances.POST("", clearanceHandler.Create)
		clearances.POST("/:id/submit", clearanceHandler.Submit)
	}

	approvals := protected.Group("/approvals")
	{
		approvals.GET("", staffOrAdmin, approvalHandler.List)
		approvals.GET("/pending", staffOrAdmin, approvalHandler.PendingQueue)
		approvals.GET("/my-decisions", staffOrAdmin, approvalHandler.MyDecisions)
		approvals.GET("/statistics", staffOrAdmin, approvalHandler.Statistics)
		approvals.GET("/:id", staffOrAdmin, approvalHandler.Get)
		approvals.POST("/:id/decision", staffOrAdmin, approvalHandler.Decide)
		approvals.POST("/:id/evidence", staffOrAdmin, approvalHandler.UploadEvidence)
		approvals.GET("/:id/evidence-url", staffOrAdmin, approvalHandler.EvidenceURL)
		approvals.POST("/bulk-decision", staffOrAdmin, approvalHandler.BulkDecide)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
	}

	audits := protected.Group("/audit-logs", adminOnly)
	{
		audits.GET("", auditHandler.List)
		audits.GET("/:entity/:id", auditHandler.Trail)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
