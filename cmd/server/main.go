package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/cache"
	"github.com/VasantLong/cgms2025/internal/config"
	"github.com/VasantLong/cgms2025/internal/database"
	"github.com/VasantLong/cgms2025/internal/handler"
	"github.com/VasantLong/cgms2025/internal/logger"
	"github.com/VasantLong/cgms2025/internal/metrics"
	"github.com/VasantLong/cgms2025/internal/middleware"
	"github.com/VasantLong/cgms2025/internal/policy"
	"github.com/VasantLong/cgms2025/internal/repository"
	"github.com/VasantLong/cgms2025/internal/router"
	"github.com/VasantLong/cgms2025/internal/service"
	"github.com/VasantLong/cgms2025/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "cgms-server")
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting CGMS backend")

	// ─── Policy and Validator ──────────────────────────────────────────
	pol, err := policy.New(cfg.Policy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid policy configuration")
	}
	if err := validator.Setup(pol); err != nil {
		log.Fatal().Err(err).Msg("Failed to register validators")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)
	classRepo := repository.NewClassRepository(pool)
	rosterRepo := repository.NewRosterRepository(pool, cfg.TxTimeout)
	gradeRepo := repository.NewGradeRepository(pool)
	reportRepo := repository.NewReportRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	redisCache := cache.NewRedisCache(rdb)
	publisher := cache.NewRedisPublisher(rdb)
	m := metrics.New(prometheus.DefaultRegisterer)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo, redisCache, log)
	studentService := service.NewStudentService(studentRepo, pol, log)
	courseService := service.NewCourseService(courseRepo, redisCache, pol, cfg.CourseCacheTTL, log)
	classService := service.NewClassService(classRepo, courseRepo, pol, log)
	rosterService := service.NewRosterService(rosterRepo, rosterRepo, classRepo, publisher, m, log)
	gradeService := service.NewGradeService(rosterRepo, rosterRepo, gradeRepo, classRepo, pol, publisher, m, log)
	reportService := service.NewReportService(reportRepo, rosterRepo, studentRepo, classRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Student: handler.NewStudentHandler(studentService, log),
		Course:  handler.NewCourseHandler(courseService, log),
		Class:   handler.NewClassHandler(classService, log),
		Roster:  handler.NewRosterHandler(rosterService, log),
		Grade:   handler.NewGradeHandler(gradeService, cfg.MaxImportBytes, log),
		Report:  handler.NewReportHandler(reportService, log),
		Event:   handler.NewEventHandler(publisher, classService, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(router.Deps{
		Config:       cfg,
		AuthService:  authService,
		Authorizer:   service.RoleAuthorizer{},
		LoginLimiter: middleware.NewRateLimiter(redisCache, cfg.LoginRateLimit, time.Minute, log),
		Gatherer:     prometheus.DefaultGatherer,
		Log:          log,
	}, handlers)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Open event streams hold their connections until the base context ends.
		log.Warn().Err(err).Msg("Closing remaining connections")
		cancel()
		_ = srv.Close()
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
