package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campuskit/sis-api/api/swagger"
	"github.com/campuskit/sis-api/internal/handler"
	"github.com/campuskit/sis-api/internal/middleware"
	"github.com/campuskit/sis-api/internal/models"
	"github.com/campuskit/sis-api/internal/repository"
	"github.com/campuskit/sis-api/internal/service"
	"github.com/campuskit/sis-api/pkg/cache"
	"github.com/campuskit/sis-api/pkg/config"
	"github.com/campuskit/sis-api/pkg/database"
	"github.com/campuskit/sis-api/pkg/logger"
	corsmiddleware "github.com/campuskit/sis-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuskit/sis-api/pkg/middleware/requestid"
)

// @title SIS API
// @version 0.1.0
// @description Student information system backend
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
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	cacheEnabled := cfg.Capacity.CacheEnabled
	if cacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, capacity cache disabled", "error", err)
			cacheEnabled = false
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db, cfg.Enrollment.LockTimeout)
	gradeRepo := repository.NewGradeRepository(db)
	financeRepo := repository.NewFinanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Capacity.CacheTTL, logr, cacheEnabled)
	authSvc := service.NewAuthService(userRepo, studentRepo, facultyRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, validate, logr)
	facultySvc := service.NewFacultyService(facultyRepo, userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, cacheSvc, cfg.Capacity.CacheTTL, validate, logr)
	semesterSvc := service.NewSemesterService(semesterRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, cacheSvc, cfg.Enrollment.MaxCreditsPerSemester, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, validate, logr)
	financeSvc := service.NewFinanceService(financeRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	facultyHandler := handler.NewFacultyHandler(facultySvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc)
	semesterHandler := handler.NewSemesterHandler(semesterSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, metricsSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	financeHandler := handler.NewFinanceHandler(financeSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	staffOrSelf := middleware.RBAC(string(models.RoleAdmin), string(models.RoleRegistrar), "SELF")
	graders := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleFaculty)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authSvc))

	users := protected.Group("/users", admin)
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", userHandler.Create)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
	}

	students := protected.Group("/students")
	{
		students.GET("", staff, studentHandler.List)
		students.GET("/:id", staffOrSelf, studentHandler.Get)
		students.POST("", staff, studentHandler.Create)
		students.PUT("/:id", staff, studentHandler.Update)
		students.DELETE("/:id", staff, studentHandler.Delete)
	}

	faculty := protected.Group("/faculty")
	{
		faculty.GET("", staff, facultyHandler.List)
		faculty.GET("/:id", staffOrSelf, facultyHandler.Get)
		faculty.POST("", admin, facultyHandler.Create)
		faculty.PUT("/:id", admin, facultyHandler.Update)
		faculty.DELETE("/:id", admin, facultyHandler.Delete)
	}

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", staff, courseHandler.Create)
		courses.PUT("/:id", staff, courseHandler.Update)
		courses.DELETE("/:id", staff, courseHandler.Delete)
	}

	sections := protected.Group("/sections")
	{
		sections.GET("", sectionHandler.List)
		sections.GET("/available", sectionHandler.Available)
		sections.GET("/:id", sectionHandler.Get)
		sections.GET("/:id/capacity", sectionHandler.Capacity)
		sections.POST("", staff, sectionHandler.Create)
		sections.PUT("/:id", staff, sectionHandler.Update)
		sections.PUT("/:id/status", staff, sectionHandler.UpdateStatus)
		sections.DELETE("/:id", staff, sectionHandler.Delete)
	}

	semesters := protected.Group("/semesters")
	{
		semesters.GET("", semesterHandler.List)
		semesters.GET("/current", semesterHandler.Current)
		semesters.GET("/:id", semesterHandler.Get)
		semesters.POST("", staff, semesterHandler.Create)
		semesters.PUT("/:id", staff, semesterHandler.Update)
		semesters.PUT("/:id/current", staff, semesterHandler.SetCurrent)
		semesters.DELETE("/:id", staff, semesterHandler.Delete)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.POST("", staff, enrollmentHandler.Create)
		enrollments.POST("/bulk", staff, enrollmentHandler.BulkCreate)
		enrollments.PUT("/:id", staff, enrollmentHandler.Update)
		enrollments.PUT("/:id/status", staff, enrollmentHandler.UpdateStatus)
		enrollments.DELETE("/:id", staff, enrollmentHandler.Delete)
	}

	grades := protected.Group("/grades")
	{
		grades.GET("", gradeHandler.List)
		grades.GET("/:id", gradeHandler.Get)
		grades.POST("", graders, gradeHandler.Create)
		grades.PUT("/:id", graders, gradeHandler.Update)
		grades.DELETE("/:id", graders, gradeHandler.Delete)
	}

	finance := protected.Group("/finance")
	{
		finance.GET("", financeHandler.List)
		finance.GET("/:id", financeHandler.Get)
		finance.POST("", staff, financeHandler.Create)
		finance.PUT("/:id/status", staff, financeHandler.UpdateStatus)
		finance.DELETE("/:id", staff, financeHandler.Delete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
