package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/services"
)

type blockApplicationService interface {
	Block(ctx context.Context, blockerID int64, blockedUsername string, reason *string) (*models.BlockEntry, error)
	Unblock(ctx context.Context, blockerID int64, blockedUsername string) error
	List(ctx context.Context, blockerID int64) ([]models.BlockEntry, error)
}

type BlockHandler struct {
	service blockApplicationService
}

func NewBlockHandler(service blockApplicationService) *BlockHandler {
	return &BlockHandler{service: service}
}

type blockRequest struct {
	Username string  `json:"username"`
	Reason   *string `json:"reason"`
}

func (h *BlockHandler) Block(c *fiber.Ctx) error {
	blockerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req blockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	entry, err := h.service.Block(c.Context(), blockerID, req.Username, req.Reason)
	if err != nil {
		return mapBlockError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"block": entry})
}

func (h *BlockHandler) Unblock(c *fiber.Ctx) error {
	blockerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	username := c.Params("username")
	if username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid username"})
	}

	if err := h.service.Unblock(c.Context(), blockerID, username); err != nil {
		return mapBlockError(c, err)
	}

	return c.JSON(fiber.Map{"status": "unblocked"})
}

func (h *BlockHandler) List(c *fiber.Ctx) error {
	blockerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	entries, err := h.service.List(c.Context(), blockerID)
	if err != nil {
		return mapBlockError(c, err)
	}

	return c.JSON(fiber.Map{"blocked": entries})
}

func mapBlockError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrRecipientUnknown):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case errors.Is(err, services.ErrSelfAction):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot block yourself"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process block request"})
	}
}
