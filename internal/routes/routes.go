package routes

import (
	"log"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mindbridge-health/MindBridgeBack/internal/config"
	"github.com/mindbridge-health/MindBridgeBack/internal/handlers"
	"github.com/mindbridge-health/MindBridgeBack/internal/middleware"
	"github.com/mindbridge-health/MindBridgeBack/internal/repository"
	"github.com/mindbridge-health/MindBridgeBack/internal/services"
	notifyws "github.com/mindbridge-health/MindBridgeBack/internal/websocket"
	"github.com/redis/go-redis/v9"
)

// RegisterRoutes wires repositories, services and handlers onto the
// app. The returned ScheduleService is the sweep body for the
// background scheduler; audit may be nil when Redis is not configured.
func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool, audit redis.Cmdable) *services.ScheduleService {
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	blockRepo := repository.NewBlockRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	scheduledRepo := repository.NewScheduledMessageRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	hub := notifyws.NewHub()
	go hub.Run()

	messagingService := services.NewMessagingService(db, conversationRepo, messageRepo, userRepo, blockRepo, templateRepo, hub)
	blockService := services.NewBlockService(blockRepo, userRepo)
	templateService := services.NewTemplateService(templateRepo)
	scheduleService := services.NewScheduleService(scheduledRepo, userRepo, messagingService, audit, nil)
	alertService := services.NewAlertService(alertRepo, userRepo, hub)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	messageHandler := handlers.NewMessageHandler(messagingService, hub, cfg.JWTSecret)
	blockHandler := handlers.NewBlockHandler(blockService)
	templateHandler := handlers.NewTemplateHandler(templateService)
	scheduleHandler := handlers.NewScheduleHandler(scheduleService)
	alertHandler := handlers.NewAlertHandler(alertService)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	messages := authProtected.Group("/messages")
	messages.Post("", messageHandler.Send)
	messages.Post("/from-template", messageHandler.SendFromTemplate)
	messages.Get("/inbox", messageHandler.Inbox)
	messages.Get("/sent", messageHandler.Sent)
	messages.Get("/search", messageHandler.Search)
	messages.Get("/unread-count", messageHandler.UnreadCount)
	messages.Delete("/:id", messageHandler.Delete)
	messages.Post("/:id/archive", messageHandler.Archive)

	conversations := authProtected.Group("/conversations")
	conversations.Post("/group", messageHandler.CreateGroup)
	conversations.Get("/:id/messages", messageHandler.Thread)
	conversations.Post("/:id/read", messageHandler.MarkRead)

	blocks := authProtected.Group("/blocks")
	blocks.Post("", blockHandler.Block)
	blocks.Get("", blockHandler.List)
	blocks.Delete("/:username", blockHandler.Unblock)

	templates := authProtected.Group("/templates")
	templates.Post("", templateHandler.Create)
	templates.Get("", templateHandler.List)
	templates.Delete("/:id", templateHandler.Delete)

	scheduled := authProtected.Group("/scheduled-messages")
	scheduled.Post("", scheduleHandler.Schedule)
	scheduled.Get("", scheduleHandler.List)
	scheduled.Delete("/:id", scheduleHandler.Cancel)

	alerts := authProtected.Group("/alerts", middleware.ClinicianOnly())
	alerts.Post("", alertHandler.Create)
	alerts.Get("/active", alertHandler.ListActive)
	alerts.Post("/:id/acknowledge", alertHandler.Acknowledge)
	alerts.Post("/:id/resolve", alertHandler.Resolve)

	api.Use("/v1/ws", messageHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(messageHandler.HandleWebSocket))

	if err := registerDocsRoutes(app, cfg); err != nil {
		log.Printf("api docs disabled: %v", err)
	}

	return scheduleService
}
