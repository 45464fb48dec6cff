package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/config"
	"github.com/VasantLong/cgms2025/internal/handler"
	"github.com/VasantLong/cgms2025/internal/middleware"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Student *handler.StudentHandler
	Course  *handler.CourseHandler
	Class   *handler.ClassHandler
	Roster  *handler.RosterHandler
	Grade   *handler.GradeHandler
	Report  *handler.ReportHandler
	Event   *handler.EventHandler
}

// Deps carries the cross-cutting collaborators of the route tree.
type Deps struct {
	Config       *config.Config
	AuthService  *service.AuthService
	Authorizer   ports.Authorizer
	LoginLimiter *middleware.RateLimiter
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(deps Deps, handlers *Handlers) *gin.Engine {
	cfg := deps.Config
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	authz := deps.Authorizer
	perm := func(p model.Permission) gin.HandlerFunc {
		return middleware.RequirePermission(authz, p)
	}

	// ─── 1. Public ─────────────────────────────────────────────────────
	public := router.Group("/api")
	if deps.LoginLimiter != nil {
		public.POST("/token", deps.LoginLimiter.Middleware(), handlers.Auth.Login)
	} else {
		public.POST("/token", handlers.Auth.Login)
	}

	// ─── 2. Authenticated ──────────────────────────────────────────────
	api := router.Group("/api")
	api.Use(middleware.RequireAuth(deps.AuthService))
	{
		api.GET("/users/me", handlers.Auth.Me)
		api.POST("/users", perm(model.PermissionUsersWrite), handlers.Auth.CreateUser)

		// Students
		api.GET("/student/list", perm(model.PermissionCatalogRead), handlers.Student.List)
		api.GET("/student/:sn", perm(model.PermissionCatalogRead), handlers.Student.Get)
		api.POST("/student", perm(model.PermissionCatalogWrite), handlers.Student.Create)
		api.PUT("/student/:sn", perm(model.PermissionCatalogWrite), handlers.Student.Update)
		api.DELETE("/student/:sn", perm(model.PermissionCatalogWrite), handlers.Student.Delete)
		api.GET("/student/:sn/report", perm(model.PermissionGradesRead), middleware.NoStore(), handlers.Report.Transcript)

		// Courses
		api.GET("/course/list", perm(model.PermissionCatalogRead), handlers.Course.List)
		api.GET("/course/:sn", perm(model.PermissionCatalogRead), handlers.Course.Get)
		api.POST("/course", perm(model.PermissionCatalogWrite), handlers.Course.Create)
		api.PUT("/course/:sn", perm(model.PermissionCatalogWrite), handlers.Course.Update)
		api.DELETE("/course/:sn", perm(model.PermissionCatalogWrite), handlers.Course.Delete)

		// Sections
		api.GET("/class/list", perm(model.PermissionCatalogRead), handlers.Class.List)
		api.GET("/class/:sn", perm(model.PermissionCatalogRead), handlers.Class.Get)
		api.POST("/class", perm(model.PermissionCatalogWrite), handlers.Class.Create)
		api.PUT("/class/:sn", perm(model.PermissionCatalogWrite), handlers.Class.Update)
		api.DELETE("/class/:sn", perm(model.PermissionCatalogWrite), handlers.Class.Delete)

		// Rosters
		api.GET("/class/:sn/students", perm(model.PermissionRosterRead), handlers.Roster.ListEnrolled)
		api.GET("/class/:sn/students/available", perm(model.PermissionRosterRead), handlers.Roster.ListAvailable)
		api.GET("/class/:sn/students/conflicts", perm(model.PermissionRosterRead), handlers.Roster.CheckConflicts)
		api.PUT("/class/:sn/students", perm(model.PermissionRosterWrite), handlers.Roster.Reconcile)
		api.DELETE("/class/:sn/students/:stu_sn", perm(model.PermissionRosterWrite), handlers.Roster.Unenroll)
		api.GET("/class/:sn/students-with-grades", perm(model.PermissionGradesRead), handlers.Grade.StudentsWithGrades)
		api.GET("/class/:sn/events", perm(model.PermissionRosterRead), handlers.Event.Stream)

		// Grades
		api.POST("/grade/batch", perm(model.PermissionGradesWrite), handlers.Grade.Batch)
		api.POST("/grade/import", perm(model.PermissionGradesWrite), handlers.Grade.Import)
		api.GET("/grade/check-conflict/:class_sn", perm(model.PermissionGradesRead), handlers.Grade.Version)
		api.GET("/grade/list", perm(model.PermissionGradesRead), handlers.Grade.List)
		api.GET("/grade/audit/:class_sn/:stu_sn", perm(model.PermissionGradesRead), handlers.Grade.Audit)

		// Reports
		report := api.Group("/report", perm(model.PermissionGradesRead), middleware.NoStore())
		report.GET("/class/:sn/summary", handlers.Report.Summary)
		report.GET("/class/:sn/grades.csv", handlers.Report.GradeSheet)
	}

	return router
}
