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

	_ "github.com/halaqat-app/progress-api/api/swagger"
	"github.com/halaqat-app/progress-api/internal/handler"
	"github.com/halaqat-app/progress-api/internal/middleware"
	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/internal/repository"
	"github.com/halaqat-app/progress-api/internal/service"
	"github.com/halaqat-app/progress-api/pkg/cache"
	"github.com/halaqat-app/progress-api/pkg/config"
	"github.com/halaqat-app/progress-api/pkg/database"
	"github.com/halaqat-app/progress-api/pkg/events"
	"github.com/halaqat-app/progress-api/pkg/logger"
	corsmiddleware "github.com/halaqat-app/progress-api/pkg/middleware/cors"
	reqidmiddleware "github.com/halaqat-app/progress-api/pkg/middleware/requestid"
)

// @title Halaqat Progress API
// @version 1.0.0
// @description Progress and stage-progression engine
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	bus := events.NewBus(events.BusConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		Logger:     logr,
	})
	bus.Start(context.Background())
	defer bus.Stop()

	stageRepo := repository.NewStageRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	progressRepo := repository.NewProgressRepository(db, studentRepo, ledgerRepo)
	certificateRepo := repository.NewCertificateRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Progression.PositionCacheTTL, logr, redisClient != nil)
	authSvc := service.NewAuthService(cfg.JWT)
	scale := service.NewGradeScale(cfg.Classifier)
	progressionSvc := service.NewProgressionService(stageRepo, assignmentRepo, progressRepo, scale, bus, cacheSvc, metricsSvc, cfg.Progression, validate, logr)
	ledgerSvc := service.NewLedgerService(ledgerRepo, stageRepo, progressRepo, cacheSvc, metricsSvc, logr)
	certificateSvc := service.NewCertificateService(certificateRepo, ledgerRepo, stageRepo, assignmentRepo, cfg.Certificates, validate, logr)
	timetableSvc := service.NewTimetableService(assignmentRepo, ledgerRepo, cacheSvc, cfg.Timetable, logr)
	studentSvc := service.NewStudentService(studentRepo, assignmentRepo, stageRepo, cacheSvc, validate, logr)
	stageSvc := service.NewStageService(stageRepo)

	bus.Subscribe(func(ctx context.Context, ev events.StageCompleted) {
		logr.Info("stage completed",
			zap.String("student_id", ev.StudentID),
			zap.String("stage_id", ev.StageID),
			zap.String("teacher_id", ev.TeacherID),
			zap.String("occurred_on", ev.OccurredOn))
	})

	evaluationHandler := handler.NewEvaluationHandler(progressionSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, ledgerSvc)
	timetableHandler := handler.NewTimetableHandler(timetableSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	stageHandler := handler.NewStageHandler(stageSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

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
	{
		api.POST("/evaluations", middleware.RequireRoles(models.RoleTeacher), evaluationHandler.Submit)

		api.POST("/students", middleware.RequireRoles(models.RoleAdmin), studentHandler.Register)
		api.PUT("/students/:id/teacher", middleware.RequireRoles(models.RoleAdmin), studentHandler.AssignTeacher)
		api.GET("/students/:id/position", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), studentHandler.Position)
		api.POST("/students/:id/position/rebuild", middleware.RequireRoles(models.RoleAdmin), studentHandler.RebuildPosition)
		api.GET("/students/:id/ledger", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), studentHandler.Ledger)

		api.GET("/timetable", middleware.RequireRoles(models.RoleTeacher), timetableHandler.Grid)
		api.GET("/timetable/export", middleware.RequireRoles(models.RoleTeacher), timetableHandler.Export)

		api.POST("/certificates", middleware.RequireRoles(models.RoleTeacher), certificateHandler.Create)
		api.GET("/certificates", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), certificateHandler.List)
		api.PATCH("/certificates/:id", middleware.RequireRoles(models.RoleAdmin), certificateHandler.Review)

		api.GET("/stages", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), stageHandler.List)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
