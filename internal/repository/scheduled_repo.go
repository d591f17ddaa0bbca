package repository

import (
	"context"
	"time"

	"github.com/mindbridge-health/MindBridgeBack/internal/models"
)

type ScheduledMessageRepository struct {
	db DBTX
}

func NewScheduledMessageRepository(db DBTX) *ScheduledMessageRepository {
	return &ScheduledMessageRepository{db: db}
}

type CreateScheduledMessageInput struct {
	SenderID     int64
	RecipientID  int64
	Subject      *string
	Content      string
	ScheduledFor time.Time
}

func (r *ScheduledMessageRepository) Create(
	ctx context.Context,
	input CreateScheduledMessageInput,
) (*models.ScheduledMessage, error) {
	query := `
		INSERT INTO scheduled_messages (sender_id, recipient_id, subject, content, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, sender_id, recipient_id, subject, content, scheduled_for, status, sent_message_id, created_at
	`

	var message models.ScheduledMessage
	err := r.db.QueryRow(
		ctx,
		query,
		input.SenderID,
		input.RecipientID,
		input.Subject,
		input.Content,
		input.ScheduledFor.UTC(),
	).Scan(
		&message.ID,
		&message.SenderID,
		&message.RecipientID,
		&message.Subject,
		&message.Content,
		&message.ScheduledFor,
		&message.Status,
		&message.SentMessageID,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

func (r *ScheduledMessageRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledMessage, error) {
	query := `
		SELECT s.id, s.sender_id, s.recipient_id, u.username, s.subject, s.content,
		       s.scheduled_for, s.status, s.sent_message_id, s.created_at
		FROM scheduled_messages s
		JOIN users u ON u.id = s.recipient_id
		WHERE s.id = $1
	`

	var message models.ScheduledMessage
	err := r.db.QueryRow(ctx, query, id).Scan(
		&message.ID,
		&message.SenderID,
		&message.RecipientID,
		&message.Recipient,
		&message.Subject,
		&message.Content,
		&message.ScheduledFor,
		&message.Status,
		&message.SentMessageID,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

func (r *ScheduledMessageRepository) ListBySender(
	ctx context.Context,
	senderID int64,
) ([]models.ScheduledMessage, error) {
	query := `
		SELECT s.id, s.sender_id, s.recipient_id, u.username, s.subject, s.content,
		       s.scheduled_for, s.status, s.sent_message_id, s.created_at
		FROM scheduled_messages s
		JOIN users u ON u.id = s.recipient_id
		WHERE s.sender_id = $1 AND s.status = 'pending'
		ORDER BY s.scheduled_for ASC, s.id ASC
	`

	rows, err := r.db.Query(ctx, query, senderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.ScheduledMessage, 0)
	for rows.Next() {
		var message models.ScheduledMessage
		if err := rows.Scan(
			&message.ID,
			&message.SenderID,
			&message.RecipientID,
			&message.Recipient,
			&message.Subject,
			&message.Content,
			&message.ScheduledFor,
			&message.Status,
			&message.SentMessageID,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// ListDue returns pending messages whose delivery time has passed, in
// delivery order.
func (r *ScheduledMessageRepository) ListDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]models.ScheduledMessage, error) {
	query := `
		SELECT s.id, s.sender_id, s.recipient_id, u.username, s.subject, s.content,
		       s.scheduled_for, s.status, s.sent_message_id, s.created_at
		FROM scheduled_messages s
		JOIN users u ON u.id = s.recipient_id
		WHERE s.status = 'pending' AND s.scheduled_for <= $1
		ORDER BY s.scheduled_for ASC, s.id ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.ScheduledMessage, 0)
	for rows.Next() {
		var message models.ScheduledMessage
		if err := rows.Scan(
			&message.ID,
			&message.SenderID,
			&message.RecipientID,
			&message.Recipient,
			&message.Subject,
			&message.Content,
			&message.ScheduledFor,
			&message.Status,
			&message.SentMessageID,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// UpdateStatusIfCurrent is a compare-and-set on status. It returns
// pgx.ErrNoRows when another actor already moved the row past
// currentStatus, which is how cancel and the sweep arbitrate.
func (r *ScheduledMessageRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	id int64,
	currentStatus string,
	nextStatus string,
	sentMessageID *int64,
) (*models.ScheduledMessage, error) {
	query := `
		UPDATE scheduled_messages
		SET status = $3, sent_message_id = COALESCE($4, sent_message_id)
		WHERE id = $1 AND status = $2
		RETURNING id, sender_id, recipient_id, subject, content, scheduled_for, status, sent_message_id, created_at
	`

	var message models.ScheduledMessage
	err := r.db.QueryRow(ctx, query, id, currentStatus, nextStatus, sentMessageID).Scan(
		&message.ID,
		&message.SenderID,
		&message.RecipientID,
		&message.Subject,
		&message.Content,
		&message.ScheduledFor,
		&message.Status,
		&message.SentMessageID,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}
