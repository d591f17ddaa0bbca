package services

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/repository"
)

type statusChange struct {
	id            int64
	currentStatus string
	nextStatus    string
	sentMessageID *int64
}

type stubScheduledStore struct {
	createResult *models.ScheduledMessage
	createErr    error
	getResult    *models.ScheduledMessage
	getErr       error
	dueResult    []models.ScheduledMessage
	dueErr       error
	updateResult *models.ScheduledMessage
	updateErr    error

	lastCreate repository.CreateScheduledMessageInput
	changes    []statusChange
}

func (s *stubScheduledStore) Create(_ context.Context, input repository.CreateScheduledMessageInput) (*models.ScheduledMessage, error) {
	s.lastCreate = input
	return s.createResult, s.createErr
}

func (s *stubScheduledStore) GetByID(_ context.Context, _ int64) (*models.ScheduledMessage, error) {
	return s.getResult, s.getErr
}

func (s *stubScheduledStore) ListBySender(_ context.Context, _ int64) ([]models.ScheduledMessage, error) {
	return nil, nil
}

func (s *stubScheduledStore) ListDue(_ context.Context, _ time.Time, _ int) ([]models.ScheduledMessage, error) {
	return s.dueResult, s.dueErr
}

func (s *stubScheduledStore) UpdateStatusIfCurrent(_ context.Context, id int64, currentStatus, nextStatus string, sentMessageID *int64) (*models.ScheduledMessage, error) {
	s.changes = append(s.changes, statusChange{id: id, currentStatus: currentStatus, nextStatus: nextStatus, sentMessageID: sentMessageID})
	return s.updateResult, s.updateErr
}

type stubDirectSender struct {
	result *models.Message
	err    error

	lastSenderID  int64
	lastRecipient string
	lastContent   string
}

func (s *stubDirectSender) Send(_ context.Context, senderID int64, recipientUsername string, _ *string, content string) (*models.Message, error) {
	s.lastSenderID = senderID
	s.lastRecipient = recipientUsername
	s.lastContent = content
	return s.result, s.err
}

func quietLogger() *log.Logger {
	return log.New(os.Stderr, "test ", log.LstdFlags)
}

func TestScheduleRejectsPastTime(t *testing.T) {
	service := NewScheduleService(&stubScheduledStore{}, &stubUsers{}, &stubDirectSender{}, nil, quietLogger())

	_, err := service.Schedule(context.Background(), 1, "dana", nil, "hello", time.Now().Add(-time.Minute))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestScheduleRejectsSelf(t *testing.T) {
	users := &stubUsers{users: map[string]*models.User{
		"me": {ID: 1, Username: "me"},
	}}
	service := NewScheduleService(&stubScheduledStore{}, users, &stubDirectSender{}, nil, quietLogger())

	_, err := service.Schedule(context.Background(), 1, "me", nil, "hello", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrSelfAction) {
		t.Fatalf("expected ErrSelfAction, got %v", err)
	}
}

func TestScheduleResolvesRecipient(t *testing.T) {
	users := &stubUsers{users: map[string]*models.User{
		"dana": {ID: 2, Username: "dana"},
	}}
	store := &stubScheduledStore{
		createResult: &models.ScheduledMessage{ID: 4, SenderID: 1, RecipientID: 2, Status: models.ScheduledStatusPending},
	}
	service := NewScheduleService(store, users, &stubDirectSender{}, nil, quietLogger())

	scheduled, err := service.Schedule(context.Background(), 1, "dana", nil, "hello", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if store.lastCreate.RecipientID != 2 {
		t.Fatalf("expected recipient id 2, got %d", store.lastCreate.RecipientID)
	}
	if scheduled.Recipient != "dana" {
		t.Fatalf("expected recipient username to be filled in, got %q", scheduled.Recipient)
	}
}

func TestCancelForeignMessageForbidden(t *testing.T) {
	store := &stubScheduledStore{
		getResult: &models.ScheduledMessage{ID: 4, SenderID: 9, Status: models.ScheduledStatusPending},
	}
	service := NewScheduleService(store, &stubUsers{}, &stubDirectSender{}, nil, quietLogger())

	if err := service.Cancel(context.Background(), 1, 4); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCancelTerminalMessage(t *testing.T) {
	store := &stubScheduledStore{
		getResult: &models.ScheduledMessage{ID: 4, SenderID: 1, Status: models.ScheduledStatusSent},
	}
	service := NewScheduleService(store, &stubUsers{}, &stubDirectSender{}, nil, quietLogger())

	if err := service.Cancel(context.Background(), 1, 4); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestCancelLosesRaceAgainstSweep(t *testing.T) {
	store := &stubScheduledStore{
		getResult: &models.ScheduledMessage{ID: 4, SenderID: 1, Status: models.ScheduledStatusPending},
		updateErr: pgx.ErrNoRows,
	}
	service := NewScheduleService(store, &stubUsers{}, &stubDirectSender{}, nil, quietLogger())

	if err := service.Cancel(context.Background(), 1, 4); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestProcessDueMarksDeliveredSent(t *testing.T) {
	store := &stubScheduledStore{
		dueResult: []models.ScheduledMessage{
			{ID: 4, SenderID: 1, RecipientID: 2, Recipient: "dana", Content: "hello", Status: models.ScheduledStatusPending},
		},
		updateResult: &models.ScheduledMessage{ID: 4, Status: models.ScheduledStatusSent},
	}
	sender := &stubDirectSender{result: &models.Message{ID: 77, Content: "hello"}}
	service := NewScheduleService(store, &stubUsers{}, sender, nil, quietLogger())

	if err := service.ProcessDue(context.Background()); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if sender.lastRecipient != "dana" {
		t.Fatalf("expected delivery to dana, got %q", sender.lastRecipient)
	}
	if len(store.changes) != 1 {
		t.Fatalf("expected one status change, got %d", len(store.changes))
	}
	change := store.changes[0]
	if change.nextStatus != models.ScheduledStatusSent || change.sentMessageID == nil || *change.sentMessageID != 77 {
		t.Fatalf("unexpected status change: %+v", change)
	}
}

func TestProcessDueCancelsPermanentRejections(t *testing.T) {
	store := &stubScheduledStore{
		dueResult: []models.ScheduledMessage{
			{ID: 4, SenderID: 1, Recipient: "dana", Content: "hello", Status: models.ScheduledStatusPending},
		},
		updateResult: &models.ScheduledMessage{ID: 4, Status: models.ScheduledStatusCancelled},
	}
	sender := &stubDirectSender{err: ErrBlocked}
	service := NewScheduleService(store, &stubUsers{}, sender, nil, quietLogger())

	if err := service.ProcessDue(context.Background()); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if len(store.changes) != 1 || store.changes[0].nextStatus != models.ScheduledStatusCancelled {
		t.Fatalf("expected cancellation, got %+v", store.changes)
	}
}

func TestProcessDueLeavesTransientFailuresPending(t *testing.T) {
	store := &stubScheduledStore{
		dueResult: []models.ScheduledMessage{
			{ID: 4, SenderID: 1, Recipient: "dana", Content: "hello", Status: models.ScheduledStatusPending},
		},
	}
	sender := &stubDirectSender{err: errors.New("connection refused")}
	service := NewScheduleService(store, &stubUsers{}, sender, nil, quietLogger())

	if err := service.ProcessDue(context.Background()); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if len(store.changes) != 0 {
		t.Fatalf("expected no status change, got %+v", store.changes)
	}
}

func TestProcessDueStopsOnCancelledContext(t *testing.T) {
	store := &stubScheduledStore{
		dueResult: []models.ScheduledMessage{
			{ID: 4, SenderID: 1, Recipient: "dana", Content: "hello", Status: models.ScheduledStatusPending},
			{ID: 5, SenderID: 1, Recipient: "dana", Content: "again", Status: models.ScheduledStatusPending},
		},
	}
	sender := &stubDirectSender{err: context.Canceled}
	service := NewScheduleService(store, &stubUsers{}, sender, nil, quietLogger())

	if err := service.ProcessDue(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
