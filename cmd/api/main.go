package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/siswa-progress-api/internal/config"
	"github.com/noah-isme/siswa-progress-api/internal/database"
	"github.com/noah-isme/siswa-progress-api/internal/handler"
	"github.com/noah-isme/siswa-progress-api/internal/middleware"
	"github.com/noah-isme/siswa-progress-api/internal/models"
	"github.com/noah-isme/siswa-progress-api/internal/repository"
	"github.com/noah-isme/siswa-progress-api/internal/router"
	"github.com/noah-isme/siswa-progress-api/internal/service"
)

const recordChangedSubject = "siswa.progress.record-changed"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.PeriodRecord{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	defer natsConn.Close()

	zone, err := time.LoadLocation(cfg.InstitutionTimezone)
	if err != nil {
		log.Fatalf("invalid institution timezone %q: %v", cfg.InstitutionTimezone, err)
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	periodRepo := repository.NewPeriodRepository(db)

	invalidator := service.NewInvalidationService(redisClient, natsConn, recordChangedSubject, logger)
	invalidator.Start(runCtx)

	windowService := service.NewWindowService(periodRepo, zone, logger)
	progressService := service.NewProgressService(periodRepo, redisClient, cfg.ProgressCacheTTL, invalidator, logger)
	incompleteService := service.NewIncompleteService(periodRepo, logger)
	countdownService := service.NewCountdownService(periodRepo, cfg.AuthorityRefresh, logger)
	invalidator.OnRecordChanged(countdownService.HandleRecordChanged)

	sweeper := service.NewSweeperService(periodRepo, invalidator, cfg.OpenSweepInterval, cfg.ExpireSweepInterval, logger)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("failed to start sweeper: %v", err)
	}
	defer sweeper.Stop()

	windowHandler := handler.NewWindowHandler(windowService, countdownService, logger)
	progressHandler := handler.NewProgressHandler(progressService, incompleteService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		WindowHandler:   windowHandler,
		ProgressHandler: progressHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
