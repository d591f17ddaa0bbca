package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mindbridge-health/MindBridgeBack/internal/config"
	"github.com/mindbridge-health/MindBridgeBack/internal/database"
	"github.com/mindbridge-health/MindBridgeBack/internal/routes"
	"github.com/mindbridge-health/MindBridgeBack/internal/scheduler"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	poolOpts := database.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}
	if err := database.ConnectDB(cfg.DBUrl, poolOpts); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB()

	// 3. Optional delivery-audit store
	var audit redis.Cmdable
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		audit = client
	}

	// 4. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	scheduleService := routes.RegisterRoutes(app, cfg, database.DB, audit)

	// 5. Background delivery sweep
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := scheduler.New(scheduleService, cfg.SchedulerInterval, nil)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer func() {
		_ = sweeper.Stop()
	}()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		_ = app.Shutdown()
	}()

	// 6. Start Server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
