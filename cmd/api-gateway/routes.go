package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/coursework-api/api/swagger"
	"github.com/noah-isme/coursework-api/internal/handler"
	"github.com/noah-isme/coursework-api/internal/middleware"
	"github.com/noah-isme/coursework-api/internal/models"
	"github.com/noah-isme/coursework-api/internal/service"
	"github.com/noah-isme/coursework-api/pkg/config"
	"github.com/noah-isme/coursework-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/coursework-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/coursework-api/pkg/middleware/requestid"
	"github.com/noah-isme/coursework-api/pkg/storage"
)

type routerDeps struct {
	identity    middleware.TokenValidator
	metrics     *service.MetricsService
	lessons     *handler.LessonHandler
	assignments *handler.AssignmentHandler
	submissions *handler.SubmissionHandler
	enrollments *handler.EnrollmentHandler
	progress    *handler.ProgressHandler
	media       *handler.MediaHandler
	storage     *handler.StorageHandler
	system      *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(cfg.Tracing.ServiceName)...)
	}
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))

	r.GET("/health", d.system.Health)
	r.GET("/ready", d.system.Ready)
	r.GET("/metrics", d.system.Prometheus)
	r.GET(storage.PublicPathPrefix+"/:bucket/*path", d.storage.ServeObject)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(d.identity))
	staff := middleware.RequireStaff()
	admin := middleware.RequireRoles(models.RoleAdmin)

	api.GET("/classes/:classId/lessons", d.lessons.List)
	api.POST("/classes/:classId/lessons", staff, d.lessons.Create)
	api.DELETE("/lessons/:lessonId", staff, d.lessons.Delete)

	api.GET("/lessons/:lessonId/assignments", d.assignments.List)
	api.POST("/lessons/:lessonId/assignments", staff, d.assignments.Create)
	api.GET("/assignments/:id", d.assignments.Get)
	api.PUT("/assignments/:id", staff, d.assignments.Update)
	api.DELETE("/assignments/:id", staff, d.assignments.Delete)

	api.PUT("/assignments/:id/submission", middleware.RequireRoles(models.RoleStudent), d.submissions.Submit)
	api.GET("/assignments/:id/submission", d.submissions.Get)
	api.GET("/assignments/:id/submissions", staff, d.submissions.List)
	api.GET("/assignments/:id/stats", staff, d.progress.AssignmentStats)
	api.PUT("/submissions/:id/review", staff, d.submissions.Review)

	api.GET("/classes/:classId/enrollments", staff, d.enrollments.List)
	api.POST("/classes/:classId/enrollments", staff, d.enrollments.Create)
	api.DELETE("/classes/:classId/enrollments/:studentId", staff, d.enrollments.Delete)

	api.GET("/classes/:classId/progress", d.progress.Student)
	api.GET("/classes/:classId/progress/roster", staff, d.progress.Roster)
	api.GET("/classes/:classId/progress/export", staff, d.progress.Export)

	api.POST("/media", d.media.Upload)
	api.POST("/storage/sweep", admin, d.storage.Sweep)
	api.GET("/system/metrics", admin, d.system.System)

	return r
}
