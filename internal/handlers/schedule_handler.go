package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/services"
)

type scheduleApplicationService interface {
	Schedule(ctx context.Context, senderID int64, recipientUsername string, subject *string, content string, scheduledFor time.Time) (*models.ScheduledMessage, error)
	ListScheduled(ctx context.Context, senderID int64) ([]models.ScheduledMessage, error)
	Cancel(ctx context.Context, requesterID int64, id int64) error
}

type ScheduleHandler struct {
	service scheduleApplicationService
}

func NewScheduleHandler(service scheduleApplicationService) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

type scheduleMessageRequest struct {
	RecipientUsername string  `json:"recipient_username"`
	Subject           *string `json:"subject"`
	Content           string  `json:"content"`
	ScheduledFor      string  `json:"scheduled_for"`
}

func (h *ScheduleHandler) Schedule(c *fiber.Ctx) error {
	senderID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req scheduleMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	scheduledFor, err := time.Parse(time.RFC3339, req.ScheduledFor)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "scheduled_for must be an RFC 3339 timestamp"})
	}

	scheduled, err := h.service.Schedule(c.Context(), senderID, req.RecipientUsername, req.Subject, req.Content, scheduledFor)
	if err != nil {
		return mapScheduleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"scheduled_message": scheduled})
}

func (h *ScheduleHandler) List(c *fiber.Ctx) error {
	senderID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	scheduled, err := h.service.ListScheduled(c.Context(), senderID)
	if err != nil {
		return mapScheduleError(c, err)
	}

	return c.JSON(fiber.Map{"scheduled_messages": scheduled})
}

func (h *ScheduleHandler) Cancel(c *fiber.Ctx) error {
	requesterID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid scheduled message id"})
	}

	if err := h.service.Cancel(c.Context(), requesterID, id); err != nil {
		return mapScheduleError(c, err)
	}

	return c.JSON(fiber.Map{"status": "cancelled"})
}

func mapScheduleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrRecipientUnknown):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recipient not found"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrAlreadyTerminal):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Scheduled message already sent or cancelled"})
	case errors.Is(err, services.ErrSelfAction):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot message yourself"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Scheduled message not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process schedule request"})
	}
}
