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

type alertApplicationService interface {
	Create(ctx context.Context, input services.CreateAlertInput) (*models.CrisisAlert, error)
	Acknowledge(ctx context.Context, alertID int64, clinicianID int64, actionTaken string) (*models.CrisisAlert, error)
	Resolve(ctx context.Context, alertID int64, clinicianID int64) (*models.CrisisAlert, error)
	ListActive(ctx context.Context) ([]models.CrisisAlert, error)
}

// AlertHandler serves the clinician-facing crisis alert surface. Route
// registration guards every endpoint with the clinician role.
type AlertHandler struct {
	service alertApplicationService
}

func NewAlertHandler(service alertApplicationService) *AlertHandler {
	return &AlertHandler{service: service}
}

type createAlertRequest struct {
	PatientUsername string  `json:"patient_username"`
	Severity        string  `json:"severity"`
	AlertType       string  `json:"alert_type"`
	Source          string  `json:"source"`
	Confidence      float64 `json:"confidence"`
}

type acknowledgeAlertRequest struct {
	ActionTaken string `json:"action_taken"`
}

func (h *AlertHandler) Create(c *fiber.Ctx) error {
	var req createAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	alert, err := h.service.Create(c.Context(), services.CreateAlertInput{
		PatientUsername: req.PatientUsername,
		Severity:        req.Severity,
		AlertType:       req.AlertType,
		Source:          req.Source,
		Confidence:      req.Confidence,
	})
	if err != nil {
		return mapAlertError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"alert": alert})
}

func (h *AlertHandler) Acknowledge(c *fiber.Ctx) error {
	clinicianID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	alertID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || alertID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid alert id"})
	}

	var req acknowledgeAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	alert, err := h.service.Acknowledge(c.Context(), alertID, clinicianID, req.ActionTaken)
	if err != nil {
		return mapAlertError(c, err)
	}

	return c.JSON(fiber.Map{"alert": alert})
}

func (h *AlertHandler) Resolve(c *fiber.Ctx) error {
	clinicianID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	alertID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || alertID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid alert id"})
	}

	alert, err := h.service.Resolve(c.Context(), alertID, clinicianID)
	if err != nil {
		return mapAlertError(c, err)
	}

	return c.JSON(fiber.Map{"alert": alert})
}

func (h *AlertHandler) ListActive(c *fiber.Ctx) error {
	alerts, err := h.service.ListActive(c.Context())
	if err != nil {
		return mapAlertError(c, err)
	}

	return c.JSON(fiber.Map{"alerts": alerts})
}

func mapAlertError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrAlreadyAcknowledged):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Alert already acknowledged"})
	case errors.Is(err, services.ErrAlreadyResolved):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Alert already resolved"})
	case errors.Is(err, services.ErrNotAcknowledged):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Alert must be acknowledged before resolution"})
	case errors.Is(err, services.ErrRecipientUnknown):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Patient not found"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Alert not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process alert request"})
	}
}
