package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/gymflow-api/api/swagger"
	"github.com/noah-isme/gymflow-api/internal/handler"
	"github.com/noah-isme/gymflow-api/internal/middleware"
	"github.com/noah-isme/gymflow-api/internal/models"
	"github.com/noah-isme/gymflow-api/internal/repository"
	"github.com/noah-isme/gymflow-api/internal/service"
	"github.com/noah-isme/gymflow-api/pkg/cache"
	"github.com/noah-isme/gymflow-api/pkg/config"
	"github.com/noah-isme/gymflow-api/pkg/database"
	"github.com/noah-isme/gymflow-api/pkg/jobs"
	"github.com/noah-isme/gymflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gymflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gymflow-api/pkg/middleware/requestid"
)

// @title GymFlow API
// @version 1.0.0
// @description Gym management core: capacity-safe enrollment, payment reconciliation, attendance tracking
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Repositories.
	classRepo := repository.NewClassRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
	}

	// Settlement notifications run on an in-memory queue so payment
	// transactions never block on delivery.
	sender := service.NewLogSender(logr)
	worker := service.NewNotificationWorker(sender, logr)
	queue := jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	notifier := service.NewNotificationService(queue, cfg.Notifications.Enabled, logr)

	// Services.
	authSvc := service.NewAuthService(cfg.JWT.Secret)
	var classSvc *service.ClassService
	if cacheRepo != nil {
		classSvc = service.NewClassService(classRepo, cacheRepo, metricsSvc, cfg.Cache.ClassListTTL, logr)
	} else {
		classSvc = service.NewClassService(classRepo, nil, metricsSvc, 0, logr)
	}
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, memberRepo, classRepo, metricsSvc, logr)
	membershipSvc := service.NewMembershipService(membershipRepo, memberRepo, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, memberRepo, notifier, metricsSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, classRepo, memberRepo, validate, logr)

	// Handlers.
	classHandler := handler.NewClassHandler(classSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, classSvc)
	membershipHandler := handler.NewMembershipHandler(membershipSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, classSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
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
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
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
	api.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	admin := middleware.RequireRoles(models.RoleAdmin)

	classes := api.Group("/classes")
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.POST("/:id/reservations", enrollmentHandler.Reserve)
		classes.GET("/:id/enrollments", staff, enrollmentHandler.ListByClass)
		classes.POST("/:id/sessions", staff,
			middleware.Audit(auditRepo, models.AuditActionSessionCreate, "attendance_session"),
			attendanceHandler.CreateSession)
		classes.GET("/:id/sessions", staff, attendanceHandler.ListSessions)
	}

	enrollments := api.Group("/enrollments")
	{
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.DELETE("/:id", enrollmentHandler.Release)
	}

	memberships := api.Group("/memberships")
	{
		memberships.POST("", membershipHandler.Open)
		memberships.GET("", membershipHandler.ListMine)
		memberships.GET("/:id", membershipHandler.Get)
		memberships.POST("/expire-lapsed", admin, membershipHandler.ExpireLapsed)
	}

	payments := api.Group("/payments")
	{
		payments.POST("",
			middleware.Audit(auditRepo, models.AuditActionPaymentOpen, "payment"),
			paymentHandler.Open)
		payments.GET("", staff, paymentHandler.List)
		payments.GET("/:id", staff, paymentHandler.Get)
		payments.POST("/:id/approve", staff,
			middleware.Audit(auditRepo, models.AuditActionPaymentApprove, "payment"),
			paymentHandler.Approve)
		payments.POST("/:id/reject", staff,
			middleware.Audit(auditRepo, models.AuditActionPaymentReject, "payment"),
			paymentHandler.Reject)
		payments.DELETE("/:id", admin,
			middleware.Audit(auditRepo, models.AuditActionPaymentDelete, "payment"),
			paymentHandler.Delete)
		payments.PATCH("/:id/status", admin,
			middleware.Audit(auditRepo, models.AuditActionPaymentCancel, "payment"),
			paymentHandler.UpdateStatus)
	}

	sessions := api.Group("/sessions")
	sessions.Use(staff)
	{
		sessions.GET("/:id", attendanceHandler.GetSession)
		sessions.POST("/:id/attendees",
			middleware.Audit(auditRepo, models.AuditActionMarkPresent, "attendance_session"),
			attendanceHandler.MarkPresent)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
