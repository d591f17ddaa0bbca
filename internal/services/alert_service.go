package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/repository"
)

type alertStore interface {
	Create(ctx context.Context, input repository.CreateAlertInput) (*models.CrisisAlert, error)
	GetByID(ctx context.Context, id int64) (*models.CrisisAlert, error)
	ListActive(ctx context.Context) ([]models.CrisisAlert, error)
	AcknowledgeIfOpen(ctx context.Context, id int64, clinicianID int64, actionTaken string) (*models.CrisisAlert, error)
	ResolveIfAcknowledged(ctx context.Context, id int64) (*models.CrisisAlert, error)
}

// AlertNotifier pushes newly raised alerts to connected clinicians.
type AlertNotifier interface {
	NotifyAlert(alert *models.CrisisAlert)
}

// AlertService owns the open -> acknowledged -> resolved lifecycle.
// It consumes alerts already scored by the external risk-detection
// pipeline; severity is validated, never computed.
type AlertService struct {
	alertRepo alertStore
	userRepo  userReader
	notifier  AlertNotifier
}

func NewAlertService(alertRepo alertStore, userRepo userReader, notifier AlertNotifier) *AlertService {
	return &AlertService{alertRepo: alertRepo, userRepo: userRepo, notifier: notifier}
}

type CreateAlertInput struct {
	PatientUsername string
	Severity        string
	AlertType       string
	Source          string
	Confidence      float64
}

func (s *AlertService) Create(ctx context.Context, input CreateAlertInput) (*models.CrisisAlert, error) {
	severity := strings.ToLower(strings.TrimSpace(input.Severity))
	switch severity {
	case models.SeverityLow, models.SeverityModerate, models.SeverityHigh, models.SeverityCritical:
	default:
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(input.AlertType) == "" || input.Confidence < 0 || input.Confidence > 1 {
		return nil, ErrInvalidInput
	}

	patient, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(input.PatientUsername))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipientUnknown
		}
		return nil, err
	}

	alert, err := s.alertRepo.Create(ctx, repository.CreateAlertInput{
		PatientID:  patient.ID,
		Severity:   severity,
		AlertType:  strings.TrimSpace(input.AlertType),
		Source:     strings.TrimSpace(input.Source),
		Confidence: input.Confidence,
	})
	if err != nil {
		return nil, err
	}
	alert.Patient = patient.Username

	if s.notifier != nil {
		s.notifier.NotifyAlert(alert)
	}
	return alert, nil
}

// Acknowledge records who acted and what they did. A second
// acknowledger is rejected rather than overwriting the clinical
// record; storage failures here always propagate to the caller.
func (s *AlertService) Acknowledge(
	ctx context.Context,
	alertID int64,
	clinicianID int64,
	actionTaken string,
) (*models.CrisisAlert, error) {
	actionTaken = strings.TrimSpace(actionTaken)
	if actionTaken == "" {
		return nil, ErrInvalidInput
	}

	alert, err := s.alertRepo.AcknowledgeIfOpen(ctx, alertID, clinicianID, actionTaken)
	if err == nil {
		return alert, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// The CAS missed: either the alert does not exist or someone else
	// already acknowledged it.
	existing, getErr := s.alertRepo.GetByID(ctx, alertID)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Acknowledged {
		return nil, ErrAlreadyAcknowledged
	}
	return nil, err
}

func (s *AlertService) Resolve(ctx context.Context, alertID int64, clinicianID int64) (*models.CrisisAlert, error) {
	alert, err := s.alertRepo.ResolveIfAcknowledged(ctx, alertID)
	if err == nil {
		return alert, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	existing, getErr := s.alertRepo.GetByID(ctx, alertID)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Resolved {
		return nil, ErrAlreadyResolved
	}
	if !existing.Acknowledged {
		return nil, ErrNotAcknowledged
	}
	return nil, err
}

// ListActive returns every unresolved alert, critical first.
func (s *AlertService) ListActive(ctx context.Context) ([]models.CrisisAlert, error) {
	return s.alertRepo.ListActive(ctx)
}
