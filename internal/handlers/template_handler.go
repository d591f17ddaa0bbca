package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/services"
)

type templateApplicationService interface {
	Create(ctx context.Context, ownerID int64, input services.CreateTemplateInput) (*models.Template, error)
	List(ctx context.Context, requesterID int64) ([]models.Template, error)
	Delete(ctx context.Context, requesterID int64, templateID int64) error
}

type TemplateHandler struct {
	service templateApplicationService
}

func NewTemplateHandler(service templateApplicationService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

type createTemplateRequest struct {
	Name     string  `json:"name"`
	Content  string  `json:"content"`
	Category *string `json:"category"`
	IsPublic bool    `json:"is_public"`
}

func (h *TemplateHandler) Create(c *fiber.Ctx) error {
	ownerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	template, err := h.service.Create(c.Context(), ownerID, services.CreateTemplateInput{
		Name:     req.Name,
		Content:  req.Content,
		Category: req.Category,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		return mapTemplateError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"template": template})
}

func (h *TemplateHandler) List(c *fiber.Ctx) error {
	requesterID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	templates, err := h.service.List(c.Context(), requesterID)
	if err != nil {
		return mapTemplateError(c, err)
	}

	return c.JSON(fiber.Map{"templates": templates})
}

func (h *TemplateHandler) Delete(c *fiber.Ctx) error {
	requesterID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	templateID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || templateID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid template id"})
	}

	if err := h.service.Delete(c.Context(), requesterID, templateID); err != nil {
		return mapTemplateError(c, err)
	}

	return c.JSON(fiber.Map{"status": "deleted"})
}

func mapTemplateError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrTemplateNameTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Template name already in use"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Template not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process template request"})
	}
}
