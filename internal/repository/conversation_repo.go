package repository

import (
	"context"
	"database/sql"

	"github.com/mindbridge-health/MindBridgeBack/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreateDirect returns the direct conversation between the two
// users, creating it on first use. The pair key is normalized so the
// argument order never produces a duplicate conversation.
func (r *ConversationRepository) GetOrCreateDirect(
	ctx context.Context,
	userA int64,
	userB int64,
	subject *string,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (is_group, subject, created_by, direct_key)
		VALUES (FALSE, $3, $1, LEAST($1::bigint, $2::bigint) || ':' || GREATEST($1::bigint, $2::bigint))
		ON CONFLICT (direct_key)
		DO UPDATE SET direct_key = conversations.direct_key
		RETURNING id, is_group, subject, created_by, created_at, last_message_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, userA, userB, subject).Scan(
		&conversation.ID,
		&conversation.IsGroup,
		&conversation.Subject,
		&conversation.CreatedBy,
		&conversation.CreatedAt,
		&conversation.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id)
		VALUES ($1, $2), ($1, $3)
		ON CONFLICT DO NOTHING
	`, conversation.ID, userA, userB)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) CreateGroup(
	ctx context.Context,
	creatorID int64,
	subject string,
	memberIDs []int64,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (is_group, subject, created_by)
		VALUES (TRUE, $1, $2)
		RETURNING id, is_group, subject, created_by, created_at, last_message_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, subject, creatorID).Scan(
		&conversation.ID,
		&conversation.IsGroup,
		&conversation.Subject,
		&conversation.CreatedBy,
		&conversation.CreatedAt,
		&conversation.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}

	participants := append([]int64{creatorID}, memberIDs...)
	_, err = r.db.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, conversation.ID, participants)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) GetByIDForParticipant(
	ctx context.Context,
	conversationID int64,
	participantID int64,
) (*models.Conversation, error) {
	query := `
		SELECT c.id, c.is_group, c.subject, c.created_by, c.created_at, c.last_message_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE c.id = $1 AND cp.user_id = $2
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, conversationID, participantID).Scan(
		&conversation.ID,
		&conversation.IsGroup,
		&conversation.Subject,
		&conversation.CreatedBy,
		&conversation.CreatedAt,
		&conversation.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

// ListInbox returns the user's conversations ordered by most recent
// visible message. Conversations where the user has soft-deleted every
// message are excluded because the lateral last-message probe finds
// nothing for them.
func (r *ConversationRepository) ListInbox(
	ctx context.Context,
	userID int64,
	limit int,
	offset int,
) ([]models.InboxEntry, error) {
	query := `
		SELECT
			c.id,
			c.is_group,
			c.subject,
			c.created_by,
			c.created_at,
			c.last_message_at,
			COALESCE(w.username, ''),
			lm.preview,
			lm.sender_username,
			lm.sent_at,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
		LEFT JOIN LATERAL (
			SELECT u.username
			FROM conversation_participants op
			JOIN users u ON u.id = op.user_id
			WHERE op.conversation_id = c.id AND op.user_id <> $1
			ORDER BY u.username
			LIMIT 1
		) w ON TRUE
		LEFT JOIN LATERAL (
			SELECT LEFT(m.content, 100) AS preview, u.username AS sender_username, m.sent_at
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE m.conversation_id = c.id
			  AND NOT EXISTS (
				SELECT 1 FROM message_deletions d
				WHERE d.message_id = m.id AND d.user_id = $1
			  )
			ORDER BY m.sent_at DESC, m.id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages m
			WHERE m.conversation_id = c.id
			  AND m.sender_id <> $1
			  AND NOT EXISTS (
				SELECT 1 FROM message_deletions d
				WHERE d.message_id = m.id AND d.user_id = $1
			  )
			  AND CASE WHEN c.is_group
				THEN NOT EXISTS (
					SELECT 1 FROM message_reads mr
					WHERE mr.message_id = m.id AND mr.user_id = $1
				)
				ELSE m.recipient_id = $1 AND m.is_read = FALSE
			  END
		) uc ON TRUE
		WHERE lm.sent_at IS NOT NULL
		ORDER BY lm.sent_at DESC, c.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.InboxEntry, 0)
	for rows.Next() {
		var entry models.InboxEntry
		var preview sql.NullString
		var lastSender sql.NullString
		var lastSentAt sql.NullTime

		if err := rows.Scan(
			&entry.ID,
			&entry.IsGroup,
			&entry.Subject,
			&entry.CreatedBy,
			&entry.CreatedAt,
			&entry.LastMessageAt,
			&entry.WithUser,
			&preview,
			&lastSender,
			&lastSentAt,
			&entry.UnreadCount,
		); err != nil {
			return nil, err
		}

		if preview.Valid {
			entry.LastMessage = &preview.String
		}
		if lastSender.Valid {
			entry.LastSender = &lastSender.String
		}
		if lastSentAt.Valid {
			t := lastSentAt.Time
			entry.LastMessageTime = &t
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *ConversationRepository) CountInbox(ctx context.Context, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
		WHERE EXISTS (
			SELECT 1 FROM messages m
			WHERE m.conversation_id = c.id
			  AND NOT EXISTS (
				SELECT 1 FROM message_deletions d
				WHERE d.message_id = m.id AND d.user_id = $1
			  )
		)
	`

	var total int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *ConversationRepository) ListParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY user_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, conversationID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = NOW()
		WHERE id = $1
	`, conversationID)
	return err
}
