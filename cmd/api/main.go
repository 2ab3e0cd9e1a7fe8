package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/openedu-labs/qfeed-api/internal/config"
	"github.com/openedu-labs/qfeed-api/internal/database"
	"github.com/openedu-labs/qfeed-api/internal/handler"
	"github.com/openedu-labs/qfeed-api/internal/middleware"
	"github.com/openedu-labs/qfeed-api/internal/models"
	"github.com/openedu-labs/qfeed-api/internal/repository"
	"github.com/openedu-labs/qfeed-api/internal/router"
	"github.com/openedu-labs/qfeed-api/internal/service"
	"github.com/openedu-labs/qfeed-api/pkg/sandbox"
)

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

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Assignment{},
		&models.AssignmentFile{},
		&models.Block{},
		&models.Choice{},
		&models.Action{},
		&models.Submission{},
		&models.Answer{},
		&models.BlockFeedback{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	sandboxClient, err := sandbox.New(sandbox.Config{
		Endpoint:   cfg.SandboxEndpoint,
		TokenURL:   cfg.MetadataTokenURL,
		SkipAuth:   cfg.IsLocal(),
		Timeout:    cfg.SandboxTimeout,
		RetryCount: cfg.SandboxRetryCount,
		RetryDelay: cfg.SandboxRetryDelay,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("failed to create sandbox client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	blockRepo := repository.NewBlockRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	feedbackService := service.NewFeedbackService(submissionRepo, blockRepo, sandboxClient, validate, logger, service.FeedbackConfig{
		StorageBucket: cfg.StorageBucket,
	})
	gradeService := service.NewGradeService(submissionRepo, assignmentRepo, sandboxClient, redisClient, logger, service.GradeConfig{
		DefaultScheme:  cfg.DefaultGradingScheme,
		SchemeCacheTTL: cfg.SchemeCacheTTL,
	})

	feedbackHandler := handler.NewFeedbackHandler(feedbackService, validate, logger)
	gradeHandler := handler.NewGradeHandler(gradeService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		FeedbackHandler: feedbackHandler,
		GradeHandler:    gradeHandler,
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
