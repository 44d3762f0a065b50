package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/logbook-api/api/swagger"
	"github.com/noah-isme/logbook-api/internal/handler"
	"github.com/noah-isme/logbook-api/internal/middleware"
	"github.com/noah-isme/logbook-api/internal/models"
	"github.com/noah-isme/logbook-api/internal/repository"
	"github.com/noah-isme/logbook-api/internal/service"
	"github.com/noah-isme/logbook-api/pkg/cache"
	"github.com/noah-isme/logbook-api/pkg/config"
	"github.com/noah-isme/logbook-api/pkg/database"
	"github.com/noah-isme/logbook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/logbook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/logbook-api/pkg/middleware/requestid"
)

// @title Teacher Logbook API
// @version 1.0.0
// @description Student record keeping with edit locks and version history
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

	var lockStore service.LockStore
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		lockStore = repository.NewRedisLockStore(redisClient)
	} else {
		memStore := repository.NewMemoryLockStore(cfg.Lock.SweepInterval)
		defer memStore.Close()
		lockStore = memStore
		logr.Warn("using in-memory lock store; edits are only serialized within this instance")
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	assignmentRepo := repository.NewRoleAssignmentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	metricsService := service.NewMetricsService()
	lockService := service.NewLockService(lockStore, cfg.Lock.TTL, metricsService, logr)
	accessService := service.NewAccessService(assignmentRepo, logr)
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, validate, logr)
	userService := service.NewUserService(userRepo, validate, logr)
	subjectService := service.NewSubjectService(subjectRepo, validate, logr)
	assignmentService := service.NewAssignmentService(assignmentRepo, userRepo, validate, logr)
	recordService := service.NewRecordService(recordRepo, lockService, accessService, userRepo, validate, logr)
	commentService := service.NewCommentService(commentRepo, recordService, validate, logr)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	subjectHandler := handler.NewSubjectHandler(subjectService)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService)
	recordHandler := handler.NewRecordHandler(recordService, cfg.Exports.Enabled)
	commentHandler := handler.NewCommentHandler(commentService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", middleware.Audit(userRepo, models.AuditActionLogin, "auth"), authHandler.Login)
			auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
			auth.GET("/me", middleware.JWT(authService), authHandler.Me)
		}

		secured := api.Group("")
		secured.Use(middleware.JWT(authService))
		{
			records := secured.Group("/records")
			{
				records.GET("", recordHandler.List)
				records.POST("",
					middleware.Audit(userRepo, models.AuditActionRecordCreate, "record"),
					recordHandler.Create)
				records.GET("/export", recordHandler.Export)
				records.GET("/:id", recordHandler.Get)
				records.PUT("/:id/content",
					middleware.Audit(userRepo, models.AuditActionRecordEdit, "record"),
					recordHandler.SubmitEdit)
				records.GET("/:id/lock", recordHandler.LockStatus)
				records.POST("/:id/lock", recordHandler.Lock)
				records.DELETE("/:id/lock", recordHandler.Unlock)
				records.POST("/:id/lock/extend", recordHandler.ExtendLock)
				records.GET("/:id/versions", recordHandler.ListVersions)
				records.PUT("/:id/permissions",
					middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher),
					middleware.Audit(userRepo, models.AuditActionRecordPermission, "record"),
					recordHandler.SetStudentEditable)
				records.GET("/:id/comments", commentHandler.ListByRecord)
				records.POST("/:id/comments", commentHandler.Create)
			}

			subjects := secured.Group("/subjects")
			{
				subjects.GET("", subjectHandler.List)
				subjects.GET("/:id", subjectHandler.Get)
				subjects.POST("", middleware.RequireRoles(models.RoleAdmin), subjectHandler.Create)
			}

			secured.PUT("/users/me", userHandler.UpdateProfile)

			admin := secured.Group("")
			admin.Use(middleware.RequireRoles(models.RoleAdmin))
			{
				admin.GET("/users", userHandler.List)
				admin.GET("/users/:id", userHandler.Get)
				admin.POST("/users",
					middleware.Audit(userRepo, models.AuditActionUserCreate, "user"),
					userHandler.Create)
				admin.PUT("/users/:id/password",
					middleware.Audit(userRepo, models.AuditActionPasswordReset, "user"),
					userHandler.ResetPassword)

				admin.GET("/assignments", assignmentHandler.List)
				admin.POST("/assignments",
					middleware.Audit(userRepo, models.AuditActionAssignmentCreate, "assignment"),
					assignmentHandler.Create)
				admin.DELETE("/assignments/:id",
					middleware.Audit(userRepo, models.AuditActionAssignmentDelete, "assignment"),
					assignmentHandler.Delete)
			}
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "redis_locks", cfg.Redis.Enabled)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
