package main

import (
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
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"

	config "github.com/schedulehq/publisher/configs"
	"github.com/schedulehq/publisher/internal/api/handlers"
	"github.com/schedulehq/publisher/internal/api/middleware"
	job "github.com/schedulehq/publisher/internal/jobs"
	"github.com/schedulehq/publisher/internal/notify"
	"github.com/schedulehq/publisher/internal/publisher"
	"github.com/schedulehq/publisher/internal/queue"
	"github.com/schedulehq/publisher/internal/repository"
	"github.com/schedulehq/publisher/internal/service"
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

	var asynqClient *asynq.Client
	var notifier notify.Notifier = notify.NewNoopNotifier()
	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	if cfg.QueueEnabled && cfg.RedisURI != "" {
		asynqClient = asynq.NewClient(redisConn)
		defer asynqClient.Close()

		notifier = notify.NewRedisNotifier(redis.NewClient(&redis.Options{Addr: cfg.RedisURI}))
	} else {
		log.Println("Queue disabled: schedules will be created but publishing will not fire")
	}

	scheduleRepo := repository.NewScheduleRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	contentItemRepo := repository.NewContentItemRepository(db)
	postRepo := repository.NewPostRepository(db)
	outcomeStore := repository.NewOutcomeStore(db, postRepo, scheduleRepo)

	tokenService := service.NewTokenService(*cfg, socialAccountRepo)
	mediaService := service.NewMediaService(*cfg)

	registry := publisher.NewRegistry(*cfg, mediaService, socialAccountRepo, nil)
	enqueuer := queue.NewEnqueuer(asynqClient)

	orchestrator := queue.NewOrchestrator(scheduleRepo, socialAccountRepo, contentItemRepo,
		postRepo, outcomeStore, tokenService, registry, enqueuer, notifier, cfg.MaxPublishAttempts)
	worker := queue.NewWorker(orchestrator, scheduleRepo, notifier)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return origin == cfg.FrontendURL
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	schedule := handlers.NewScheduleHandler(scheduleRepo, socialAccountRepo, postRepo, enqueuer)
	api.Post("/schedules/create", schedule.CreateSchedule)
	api.Get("/schedules", schedule.ListSchedules)
	api.Get("/schedules/post", schedule.GetSchedulePost)
	api.Post("/schedules/remove", schedule.RemoveSchedule)

	account := handlers.NewAccountHandler(socialAccountRepo)
	api.Get("/accounts", account.ListSocialAccounts)
	api.Post("/accounts/remove", account.RemoveSocialAccount)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, tokenService)
	requeueJob := job.NewRequeueJob(scheduleRepo, enqueuer)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.AddFunc("@every 00h01m00s", requeueJob.RequeueDue)
	c.Start()

	if asynqClient != nil {
		go func() {
			server := asynq.NewServer(redisConn, asynq.Config{
				Concurrency: cfg.WorkerConcurrency,
				Queues:      map[string]int{queue.QueueName: 1},
			})

			mux := asynq.NewServeMux()
			mux.HandleFunc(queue.TaskTypeSchedulePublish, worker.HandleSchedulePublishTask)

			log.Println("Starting the Asynq server...")
			if err := server.Run(mux); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	}

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
