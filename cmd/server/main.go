package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"

	config "github.com/postpulse/api/configs"
	"github.com/postpulse/api/internal/api/handlers"
	"github.com/postpulse/api/internal/api/middleware"
	job "github.com/postpulse/api/internal/jobs"
	"github.com/postpulse/api/internal/provider"
	"github.com/postpulse/api/internal/queue"
	"github.com/postpulse/api/internal/repository"
	"github.com/postpulse/api/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Printf("Warning: Redis is unreachable, analytics cache disabled: %v", err)
		redisClient = nil
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	publicationRepo := repository.NewPublicationRepository(db)
	queueJobRepo := repository.NewQueueJobRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	registry := provider.NewRegistry()
	registry.Register("instagram", provider.NewInstagramAdapter(*cfg))
	registry.Register("twitter", provider.NewTwitterAdapter(*cfg))

	engagementService := service.NewEngagementService(cfg.Engagement, publicationRepo, snapshotRepo, socialAccountRepo, registry)
	scheduler := queue.NewScheduler(cfg.Scheduler, queueJobRepo, publicationRepo, socialAccountRepo, registry, engagementService)

	mediaService, err := service.NewMediaService(*cfg)
	if err != nil {
		log.Fatalf("Failed to initialize media storage: %v", err)
	}
	publicationService := service.NewPublicationService(publicationRepo, socialAccountRepo, scheduler)
	analyticsService := service.NewAnalyticsService(activityRepo, socialAccountRepo, registry, redisClient)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	webhook := handlers.NewWebhookHandler(engagementService)
	app.Post("/webhooks/:provider", webhook.Receive)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	publication := handlers.NewPublicationHandler(publicationService, mediaService)
	api.Post("/publications", publication.CreatePublication)
	api.Get("/publications", publication.ListPublications)
	api.Post("/publications/cancel", publication.CancelPublication)

	engagement := handlers.NewEngagementHandler(engagementService)
	api.Get("/publications/:id/engagement", engagement.GetSummary)
	api.Get("/publications/:id/engagement/history", engagement.GetHistory)
	api.Post("/publications/:id/engagement/collect", engagement.CollectNow)

	analytics := handlers.NewAnalyticsHandler(analyticsService)
	api.Get("/analytics/best-times", analytics.BestPostingTimes)
	api.Get("/analytics/schedule", analytics.OptimalSchedule)
	api.Get("/analytics/performance", analytics.PostPerformance)

	// cron jobs
	tokenRefreshJob := job.NewTokenRefreshJob(socialAccountRepo, scheduler)
	metricsPollJob := job.NewMetricsPollJob(cfg.Engagement, publicationRepo, scheduler)
	retentionJob := job.NewRetentionJob(cfg.Scheduler, cfg.Engagement, scheduler, engagementService)

	c := cron.New()
	c.AddFunc(fmt.Sprintf("@every %s", cfg.Scheduler.TickInterval), func() {
		scheduler.Tick(context.Background())
	})
	c.AddFunc("@every 00h10m00s", tokenRefreshJob.Run)
	c.AddFunc("@every 00h30m00s", metricsPollJob.Run)
	c.AddFunc("@every 01h00m00s", retentionJob.Run)
	c.Start()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, c)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, c *cron.Cron) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
