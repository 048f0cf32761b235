package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-engine/internal/config"
	"github.com/noah-isme/gema-review-engine/internal/database"
	"github.com/noah-isme/gema-review-engine/internal/handler"
	"github.com/noah-isme/gema-review-engine/internal/middleware"
	"github.com/noah-isme/gema-review-engine/internal/repository"
	"github.com/noah-isme/gema-review-engine/internal/router"
	"github.com/noah-isme/gema-review-engine/internal/service"
	"github.com/noah-isme/gema-review-engine/pkg/clock"
	"github.com/noah-isme/gema-review-engine/pkg/lock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := database.ConnectRedis(rootCtx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled: summary cache off, sweep lock is process-local")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	clk := clock.System()

	assignmentRepo := repository.NewAssignmentRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	peerReviewRepo := repository.NewPeerReviewRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	dispatcher := service.NewMultiDispatcher(
		logger,
		service.NewStoreDispatcher(notificationRepo),
		service.NewBrokerDispatcher(redisClient, natsConn, cfg.NotificationsChannel, clk),
	)

	activityService := service.NewActivityService(activityRepo, validate, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, rosterRepo, dispatcher, activityService, validate, clk, cfg.StaleWriteRetries, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, rosterRepo, activityService, validate, clk, cfg.StaleWriteRetries, logger)
	peerReviewService := service.NewPeerReviewService(peerReviewRepo, submissionRepo, assignmentRepo, rosterRepo, redisClient, activityService, validate, clk, service.PeerReviewConfig{
		DefaultReviewers:  cfg.PeerDefaultReviewers,
		SpareCandidates:   cfg.PeerSpareCandidates,
		SummaryCacheTTL:   cfg.AggregateCacheTTL,
		StaleWriteRetries: cfg.StaleWriteRetries,
	}, logger)
	notificationService := service.NewNotificationService(notificationRepo)

	var locker lock.Locker = lock.NewLocalLock()
	if redisClient != nil {
		locker = lock.NewRedisLock(redisClient, cfg.NotificationsChannel+":lock:")
	}

	sweeper := service.NewSchedulingSweeper(assignmentRepo, rosterRepo, peerReviewRepo, dispatcher, locker, clk, service.SweeperConfig{
		BatchSize:         cfg.SweepBatchSize,
		ItemTimeout:       cfg.SweepItemTimeout,
		ReminderWindow:    cfg.SweepReminderWindow,
		LockTTL:           cfg.SweepLockTTL,
		StaleWriteRetries: cfg.StaleWriteRetries,
	}, logger)

	scheduler := service.NewSweepScheduler(sweeper, cfg.SweepSchedule, cfg.SweepLockTTL, logger)
	if err := scheduler.Start(rootCtx); err != nil {
		log.Fatalf("failed to start sweep scheduler: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler:   handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(submissionService, logger),
		PeerReviewHandler:   handler.NewPeerReviewHandler(peerReviewService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		AdminHandler:        handler.NewAdminHandler(sweeper, activityService, logger),
		HealthProbes:        healthProbes(db, redisClient, natsConn),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-rootCtx.Done()
	shutdown(app, scheduler, logger)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return fmt.Errorf("nats status %s", natsConn.Status())
			}
			return nil
		}
	}
	return probes
}

func shutdown(app *fiber.App, scheduler *service.SweepScheduler, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := scheduler.Stop(ctx); err != nil {
		logger.Warn().Err(err).Msg("sweep scheduler did not stop cleanly")
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
