package services

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/repository"
)

type stubAlertStore struct {
	createResult  *models.CrisisAlert
	createErr     error
	getResult     *models.CrisisAlert
	getErr        error
	ackResult     *models.CrisisAlert
	ackErr        error
	resolveResult *models.CrisisAlert
	resolveErr    error
	listResult    []models.CrisisAlert

	lastCreate repository.CreateAlertInput
	lastAction string
}

func (s *stubAlertStore) Create(_ context.Context, input repository.CreateAlertInput) (*models.CrisisAlert, error) {
	s.lastCreate = input
	return s.createResult, s.createErr
}

func (s *stubAlertStore) GetByID(_ context.Context, _ int64) (*models.CrisisAlert, error) {
	return s.getResult, s.getErr
}

func (s *stubAlertStore) ListActive(_ context.Context) ([]models.CrisisAlert, error) {
	return s.listResult, nil
}

func (s *stubAlertStore) AcknowledgeIfOpen(_ context.Context, _ int64, _ int64, actionTaken string) (*models.CrisisAlert, error) {
	s.lastAction = actionTaken
	return s.ackResult, s.ackErr
}

func (s *stubAlertStore) ResolveIfAcknowledged(_ context.Context, _ int64) (*models.CrisisAlert, error) {
	return s.resolveResult, s.resolveErr
}

func alertTestUsers() *stubUsers {
	return &stubUsers{users: map[string]*models.User{
		"dana": {ID: 2, Username: "dana", Role: "patient"},
	}}
}

func TestCreateAlertRejectsUnknownSeverity(t *testing.T) {
	service := NewAlertService(&stubAlertStore{}, alertTestUsers(), nil)

	_, err := service.Create(context.Background(), CreateAlertInput{
		PatientUsername: "dana",
		Severity:        "urgent",
		AlertType:       "self_harm_language",
		Confidence:      0.9,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateAlertRejectsConfidenceOutOfRange(t *testing.T) {
	service := NewAlertService(&stubAlertStore{}, alertTestUsers(), nil)

	_, err := service.Create(context.Background(), CreateAlertInput{
		PatientUsername: "dana",
		Severity:        "high",
		AlertType:       "self_harm_language",
		Confidence:      1.2,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateAlertNormalizesSeverityAndNotifies(t *testing.T) {
	store := &stubAlertStore{
		createResult: &models.CrisisAlert{ID: 3, PatientID: 2, Severity: models.SeverityCritical},
	}
	notifier := &stubNotifier{}
	service := NewAlertService(store, alertTestUsers(), notifier)

	alert, err := service.Create(context.Background(), CreateAlertInput{
		PatientUsername: "dana",
		Severity:        " CRITICAL ",
		AlertType:       "self_harm_language",
		Source:          "journal_entry",
		Confidence:      0.94,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if store.lastCreate.Severity != models.SeverityCritical {
		t.Fatalf("expected severity normalized to critical, got %q", store.lastCreate.Severity)
	}
	if alert.Patient != "dana" {
		t.Fatalf("expected patient username filled in, got %q", alert.Patient)
	}
	if len(notifier.alerts) != 1 || notifier.alerts[0].ID != 3 {
		t.Fatalf("expected one alert notification, got %+v", notifier.alerts)
	}
}

func TestCreateAlertUnknownPatient(t *testing.T) {
	service := NewAlertService(&stubAlertStore{}, &stubUsers{}, nil)

	_, err := service.Create(context.Background(), CreateAlertInput{
		PatientUsername: "ghost",
		Severity:        "high",
		AlertType:       "self_harm_language",
		Confidence:      0.9,
	})
	if !errors.Is(err, ErrRecipientUnknown) {
		t.Fatalf("expected ErrRecipientUnknown, got %v", err)
	}
}

func TestAcknowledgeRequiresAction(t *testing.T) {
	service := NewAlertService(&stubAlertStore{}, alertTestUsers(), nil)

	_, err := service.Acknowledge(context.Background(), 3, 7, "   ")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAcknowledgeSecondClinicianRejected(t *testing.T) {
	store := &stubAlertStore{
		ackErr:    pgx.ErrNoRows,
		getResult: &models.CrisisAlert{ID: 3, Acknowledged: true},
	}
	service := NewAlertService(store, alertTestUsers(), nil)

	_, err := service.Acknowledge(context.Background(), 3, 7, "called patient")
	if !errors.Is(err, ErrAlreadyAcknowledged) {
		t.Fatalf("expected ErrAlreadyAcknowledged, got %v", err)
	}
}

func TestResolveBeforeAcknowledge(t *testing.T) {
	store := &stubAlertStore{
		resolveErr: pgx.ErrNoRows,
		getResult:  &models.CrisisAlert{ID: 3, Acknowledged: false},
	}
	service := NewAlertService(store, alertTestUsers(), nil)

	_, err := service.Resolve(context.Background(), 3, 7)
	if !errors.Is(err, ErrNotAcknowledged) {
		t.Fatalf("expected ErrNotAcknowledged, got %v", err)
	}
}

func TestResolveTwiceRejected(t *testing.T) {
	store := &stubAlertStore{
		resolveErr: pgx.ErrNoRows,
		getResult:  &models.CrisisAlert{ID: 3, Acknowledged: true, Resolved: true},
	}
	service := NewAlertService(store, alertTestUsers(), nil)

	_, err := service.Resolve(context.Background(), 3, 7)
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}
