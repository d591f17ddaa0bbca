package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/services"
	notifyws "github.com/mindbridge-health/MindBridgeBack/internal/websocket"
	"github.com/mindbridge-health/MindBridgeBack/pkg/utils"
)

type messagingApplicationService interface {
	Send(ctx context.Context, senderID int64, recipientUsername string, subject *string, content string) (*models.Message, error)
	SendFromTemplate(ctx context.Context, senderID int64, recipientUsername string, templateID int64, subject *string) (*models.Message, error)
	SendToConversation(ctx context.Context, senderID int64, conversationID int64, content string) (*models.Message, error)
	CreateGroup(ctx context.Context, creatorID int64, subject string, memberUsernames []string) (*models.Conversation, error)
	ListInbox(ctx context.Context, userID int64, page int, limit int) (*models.Inbox, int, error)
	GetThread(ctx context.Context, viewerID int64, conversationID int64, page int, limit int) ([]models.Message, int, error)
	MarkRead(ctx context.Context, viewerID int64, conversationID int64) error
	SoftDelete(ctx context.Context, viewerID int64, messageID int64) error
	Archive(ctx context.Context, viewerID int64, messageID int64) error
	Search(ctx context.Context, viewerID int64, query string) ([]models.Message, error)
	ListSent(ctx context.Context, userID int64) ([]models.Message, error)
	UnreadTotal(ctx context.Context, userID int64) (int, error)
}

type MessageHandler struct {
	service   messagingApplicationService
	hub       *notifyws.Hub
	jwtSecret string
}

func NewMessageHandler(service messagingApplicationService, hub *notifyws.Hub, jwtSecret string) *MessageHandler {
	return &MessageHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

type sendMessageRequest struct {
	RecipientUsername string  `json:"recipient_username"`
	Subject           *string `json:"subject"`
	Content           string  `json:"content"`
}

type sendFromTemplateRequest struct {
	RecipientUsername string  `json:"recipient_username"`
	TemplateID        int64   `json:"template_id"`
	Subject           *string `json:"subject"`
}

type createGroupRequest struct {
	Subject string   `json:"subject"`
	Members []string `json:"members"`
}

func (h *MessageHandler) Send(c *fiber.Ctx) error {
	senderID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.Send(c.Context(), senderID, req.RecipientUsername, req.Subject, req.Content)
	if err != nil {
		return mapMessagingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *MessageHandler) SendFromTemplate(c *fiber.Ctx) error {
	senderID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendFromTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TemplateID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid template id"})
	}

	message, err := h.service.SendFromTemplate(c.Context(), senderID, req.RecipientUsername, req.TemplateID, req.Subject)
	if err != nil {
		return mapMessagingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *MessageHandler) CreateGroup(c *fiber.Ctx) error {
	creatorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversation, err := h.service.CreateGroup(c.Context(), creatorID, req.Subject, req.Members)
	if err != nil {
		return mapMessagingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *MessageHandler) Inbox(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	inbox, total, err := h.service.ListInbox(c.Context(), userID, page, limit)
	if err != nil {
		return mapMessagingError(c, err)
	}

	return c.JSON(fiber.Map{
		"inbox":      inbox,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *MessageHandler) Thread(c *fiber.Ctx) error {
	viewerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation id"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, total, err := h.service.GetThread(c.Context(), viewerID, conversationID, page, limit)
	if err != nil {
		return mapMessagingError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *MessageHandler) MarkRead(c *fiber.Ctx) error {
	viewerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation id"})
	}

	if err := h.service.MarkRead(c.Context(), viewerID, conversationID); err != nil {
		return mapMessagingError(c, err)
	}

	return c.JSON(fiber.Map{"status": "read"})
}

func (h *MessageHandler) Delete(c *fiber.Ctx) error {
	viewerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || messageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	if err := h.service.SoftDelete(c.Context(), viewerID, messageID); err != nil {
		return mapMessagingError(c, err)
	}

	return c.JSON(fiber.Map{"status": "deleted"})
}

func (h *MessageHandler) Archive(c *fiber.Ctx) error {
	viewerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || messageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	if err := h.service.Archive(c.Context(), viewerID, messageID); err != nil {
		return mapMessagingError(c, err)
	}

	return c.JSON(fiber.Map{"status": "archived"})
}

func (h *MessageHandler) Sent(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messages, err := h.service.ListSent(c.Context(), userID)
	if err != nil {
		return mapMessagingError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *MessageHandler) Search(c *fiber.Ctx) error {
	viewerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	results, err := h.service.Search(c.Context(), viewerID, c.Query("q"))
	if err != nil {
		return mapMessagingError(c, err)
	}

	return c.JSON(fiber.Map{"results": results})
}

func (h *MessageHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	total, err := h.service.UnreadTotal(c.Context(), userID)
	if err != nil {
		return mapMessagingError(c, err)
	}

	return c.JSON(fiber.Map{"unread": total})
}

func (h *MessageHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *MessageHandler) HandleWebSocket(conn *websocket.Conn) {
	rawID, _ := conn.Locals("user_id").(string)
	role, _ := conn.Locals("role").(string)

	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		_ = conn.Close()
		return
	}

	client := notifyws.NewClient(h.hub, conn, userID, role)
	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.service)
}

func (h *MessageHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func mapMessagingError(c *fiber.Ctx, err error) error {
	switch {
	// Deliberately the same body a transient failure would produce, so
	// a sender cannot probe who has blocked them.
	case errors.Is(err, services.ErrBlocked):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Message could not be delivered"})
	case errors.Is(err, services.ErrRecipientUnknown):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recipient not found"})
	case errors.Is(err, services.ErrNotParticipant):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrSelfAction):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot message yourself"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process message request"})
	}
}
