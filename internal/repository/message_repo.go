package repository

import (
	"context"

	"github.com/mindbridge-health/MindBridgeBack/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

type CreateMessageInput struct {
	ConversationID int64
	SenderID       int64
	RecipientID    *int64
	Subject        *string
	Content        string
}

func (r *MessageRepository) Create(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, recipient_id, subject, content, is_read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id, conversation_id, sender_id, recipient_id, subject, content, is_read, read_at, sent_at
	`

	var message models.Message
	err := r.db.QueryRow(
		ctx,
		query,
		input.ConversationID,
		input.SenderID,
		input.RecipientID,
		input.Subject,
		input.Content,
	).Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.RecipientID,
		&message.Subject,
		&message.Content,
		&message.IsRead,
		&message.ReadAt,
		&message.SentAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// ListByConversation returns the thread in send order, hiding messages
// the viewer has soft-deleted.
func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID int64,
	viewerID int64,
	limit int,
	offset int,
) ([]models.Message, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.conversation_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM message_deletions d
			WHERE d.message_id = m.id AND d.user_id = $2
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM message_archives a
			WHERE a.message_id = m.id AND a.user_id = $2
		  )
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, conversationID, viewerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.recipient_id,
		       m.subject, m.content, m.is_read, m.read_at, m.sent_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM message_deletions d
			WHERE d.message_id = m.id AND d.user_id = $2
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM message_archives a
			WHERE a.message_id = m.id AND a.user_id = $2
		  )
		ORDER BY m.sent_at ASC, m.id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, conversationID, viewerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.SenderUsername,
			&message.RecipientID,
			&message.Subject,
			&message.Content,
			&message.IsRead,
			&message.ReadAt,
			&message.SentAt,
		); err != nil {
			return nil, 0, err
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// MarkConversationRead covers both shapes: direct messages flip is_read
// on rows addressed to the reader, group messages get a per-reader
// receipt row. Idempotent either way.
func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	conversationID int64,
	readerID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = NOW()
		WHERE conversation_id = $1
		  AND recipient_id = $2
		  AND is_read = FALSE
	`, conversationID, readerID)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO message_reads (message_id, user_id)
		SELECT m.id, $2
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.conversation_id = $1
		  AND c.is_group
		  AND m.sender_id <> $2
		ON CONFLICT DO NOTHING
	`, conversationID, readerID)
	return err
}

// GetByIDForParticipant fetches a message only when the viewer belongs
// to its conversation.
func (r *MessageRepository) GetByIDForParticipant(
	ctx context.Context,
	messageID int64,
	viewerID int64,
) (*models.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.recipient_id,
		       m.subject, m.content, m.is_read, m.read_at, m.sent_at
		FROM messages m
		JOIN conversation_participants cp ON cp.conversation_id = m.conversation_id
		WHERE m.id = $1 AND cp.user_id = $2
	`

	var message models.Message
	err := r.db.QueryRow(ctx, query, messageID, viewerID).Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.RecipientID,
		&message.Subject,
		&message.Content,
		&message.IsRead,
		&message.ReadAt,
		&message.SentAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, messageID int64, userID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_deletions (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, messageID, userID)
	return err
}

// Archive hides the message from the user's thread view without
// deleting it; the message stays searchable.
func (r *MessageRepository) Archive(ctx context.Context, messageID int64, userID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_archives (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, messageID, userID)
	return err
}

// Search matches content and subject case-insensitively across the
// viewer's conversations, skipping soft-deleted messages.
func (r *MessageRepository) Search(
	ctx context.Context,
	viewerID int64,
	query string,
	limit int,
) ([]models.Message, error) {
	pattern := "%" + query + "%"
	searchQuery := `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.recipient_id,
		       m.subject, LEFT(m.content, 200), m.is_read, m.read_at, m.sent_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		JOIN conversation_participants cp
		  ON cp.conversation_id = m.conversation_id AND cp.user_id = $1
		WHERE NOT EXISTS (
			SELECT 1 FROM message_deletions d
			WHERE d.message_id = m.id AND d.user_id = $1
		  )
		  AND (m.content ILIKE $2 OR m.subject ILIKE $2)
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, searchQuery, viewerID, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.SenderUsername,
			&message.RecipientID,
			&message.Subject,
			&message.Content,
			&message.IsRead,
			&message.ReadAt,
			&message.SentAt,
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

func (r *MessageRepository) ListSentBySender(
	ctx context.Context,
	senderID int64,
	limit int,
) ([]models.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, m.recipient_id,
		       m.subject, m.content, m.is_read, m.read_at, m.sent_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.sender_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM message_deletions d
			WHERE d.message_id = m.id AND d.user_id = $1
		  )
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, senderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.SenderUsername,
			&message.RecipientID,
			&message.Subject,
			&message.Content,
			&message.IsRead,
			&message.ReadAt,
			&message.SentAt,
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

// UnreadTotal counts unread messages addressed to the user across all
// conversations, computed from the rows themselves rather than a
// cached counter.
func (r *MessageRepository) UnreadTotal(ctx context.Context, userID int64) (int, error) {
	query := `
		SELECT
			(SELECT COUNT(*)
			 FROM messages m
			 WHERE m.recipient_id = $1
			   AND m.is_read = FALSE
			   AND NOT EXISTS (
				SELECT 1 FROM message_deletions d
				WHERE d.message_id = m.id AND d.user_id = $1
			   ))
			+
			(SELECT COUNT(*)
			 FROM messages m
			 JOIN conversations c ON c.id = m.conversation_id AND c.is_group
			 JOIN conversation_participants cp
			   ON cp.conversation_id = c.id AND cp.user_id = $1
			 WHERE m.sender_id <> $1
			   AND NOT EXISTS (
				SELECT 1 FROM message_reads mr
				WHERE mr.message_id = m.id AND mr.user_id = $1
			   )
			   AND NOT EXISTS (
				SELECT 1 FROM message_deletions d
				WHERE d.message_id = m.id AND d.user_id = $1
			   ))
	`

	var total int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
