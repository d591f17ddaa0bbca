package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/repository"
)

const defaultSweepFetchLimit = 50

type scheduledStore interface {
	Create(ctx context.Context, input repository.CreateScheduledMessageInput) (*models.ScheduledMessage, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledMessage, error)
	ListBySender(ctx context.Context, senderID int64) ([]models.ScheduledMessage, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error)
	UpdateStatusIfCurrent(ctx context.Context, id int64, currentStatus, nextStatus string, sentMessageID *int64) (*models.ScheduledMessage, error)
}

type directSender interface {
	Send(ctx context.Context, senderID int64, recipientUsername string, subject *string, content string) (*models.Message, error)
}

// ScheduleService holds deferred messages and hands them to the
// delivery path once their time arrives. Blocking rules are applied at
// actuation, not at scheduling, because the block list may change in
// between.
type ScheduleService struct {
	scheduledRepo scheduledStore
	userRepo      userReader
	sender        directSender
	audit         redis.Cmdable
	fetchLimit    int
	logger        *log.Logger
}

func NewScheduleService(
	scheduledRepo scheduledStore,
	userRepo userReader,
	sender directSender,
	audit redis.Cmdable,
	logger *log.Logger,
) *ScheduleService {
	if logger == nil {
		logger = log.New(os.Stdout, "schedule ", log.LstdFlags)
	}
	return &ScheduleService{
		scheduledRepo: scheduledRepo,
		userRepo:      userRepo,
		sender:        sender,
		audit:         audit,
		fetchLimit:    defaultSweepFetchLimit,
		logger:        logger,
	}
}

func (s *ScheduleService) Schedule(
	ctx context.Context,
	senderID int64,
	recipientUsername string,
	subject *string,
	content string,
	scheduledFor time.Time,
) (*models.ScheduledMessage, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || len(trimmed) > MaxMessageLength {
		return nil, ErrInvalidInput
	}
	if subject != nil && len(*subject) > MaxSubjectLength {
		return nil, ErrInvalidInput
	}
	if !scheduledFor.After(time.Now()) {
		return nil, ErrInvalidInput
	}

	recipient, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(recipientUsername))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipientUnknown
		}
		return nil, err
	}
	if recipient.ID == senderID {
		return nil, ErrSelfAction
	}

	message, err := s.scheduledRepo.Create(ctx, repository.CreateScheduledMessageInput{
		SenderID:     senderID,
		RecipientID:  recipient.ID,
		Subject:      subject,
		Content:      trimmed,
		ScheduledFor: scheduledFor,
	})
	if err != nil {
		return nil, err
	}
	message.Recipient = recipient.Username
	return message, nil
}

func (s *ScheduleService) ListScheduled(ctx context.Context, senderID int64) ([]models.ScheduledMessage, error) {
	return s.scheduledRepo.ListBySender(ctx, senderID)
}

// Cancel is a compare-and-set from pending to cancelled. Losing the
// race against the sweep reports ErrAlreadyTerminal so the client can
// refresh.
func (s *ScheduleService) Cancel(ctx context.Context, requesterID int64, id int64) error {
	message, err := s.scheduledRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if message.SenderID != requesterID {
		return ErrForbidden
	}
	if message.Status != models.ScheduledStatusPending {
		return ErrAlreadyTerminal
	}

	_, err = s.scheduledRepo.UpdateStatusIfCurrent(
		ctx,
		id,
		models.ScheduledStatusPending,
		models.ScheduledStatusCancelled,
		nil,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyTerminal
	}
	return err
}

// ProcessDue is the scheduler sweep body: deliver each due pending
// message as if newly sent, then flip it to sent. Rejections that can
// never succeed (blocked, recipient gone, invalid payload) cancel the
// record; transient failures leave it pending for the next sweep.
func (s *ScheduleService) ProcessDue(ctx context.Context) error {
	due, err := s.scheduledRepo.ListDue(ctx, time.Now(), s.fetchLimit)
	if err != nil {
		return err
	}

	for _, scheduled := range due {
		if err := s.actuate(ctx, scheduled); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.logger.Printf("scheduled message %d: %v", scheduled.ID, err)
		}
	}

	return nil
}

func (s *ScheduleService) actuate(ctx context.Context, scheduled models.ScheduledMessage) error {
	message, err := s.sender.Send(ctx, scheduled.SenderID, scheduled.Recipient, scheduled.Subject, scheduled.Content)
	if err != nil {
		if errors.Is(err, ErrBlocked) || errors.Is(err, ErrRecipientUnknown) ||
			errors.Is(err, ErrSelfAction) || errors.Is(err, ErrInvalidInput) {
			if _, cancelErr := s.scheduledRepo.UpdateStatusIfCurrent(
				ctx,
				scheduled.ID,
				models.ScheduledStatusPending,
				models.ScheduledStatusCancelled,
				nil,
			); cancelErr != nil && !errors.Is(cancelErr, pgx.ErrNoRows) {
				return cancelErr
			}
		}
		return err
	}

	if _, err := s.scheduledRepo.UpdateStatusIfCurrent(
		ctx,
		scheduled.ID,
		models.ScheduledStatusPending,
		models.ScheduledStatusSent,
		&message.ID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent cancel won after the message went out.
			s.logger.Printf("scheduled message %d delivered but already terminal", scheduled.ID)
			return nil
		}
		return err
	}

	s.recordDelivery(ctx, scheduled.ID, message)
	return nil
}

// recordDelivery writes an audit trail entry for the actuation when a
// Redis endpoint is configured. Best effort only.
func (s *ScheduleService) recordDelivery(ctx context.Context, scheduledID int64, message *models.Message) {
	if s.audit == nil {
		return
	}

	key := fmt.Sprintf("scheduled_delivery:%d", scheduledID)
	values := map[string]interface{}{
		"event_id":   uuid.NewString(),
		"message_id": message.ID,
		"sent_at":    message.SentAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.audit.HSet(ctx, key, values).Err(); err != nil {
		s.logger.Printf("delivery audit for scheduled message %d: %v", scheduledID, err)
	}
}
