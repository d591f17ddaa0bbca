package repository

import (
	"context"

	"github.com/mindbridge-health/MindBridgeBack/internal/models"
)

type BlockRepository struct {
	db DBTX
}

func NewBlockRepository(db DBTX) *BlockRepository {
	return &BlockRepository{db: db}
}

// Upsert is idempotent: re-blocking an already blocked user keeps the
// original entry and its reason.
func (r *BlockRepository) Upsert(
	ctx context.Context,
	blockerID int64,
	blockedID int64,
	reason *string,
) (*models.BlockEntry, error) {
	query := `
		INSERT INTO blocked_users (blocker_id, blocked_id, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (blocker_id, blocked_id)
		DO UPDATE SET blocker_id = blocked_users.blocker_id
		RETURNING id, blocker_id, blocked_id, reason, created_at
	`

	var entry models.BlockEntry
	err := r.db.QueryRow(ctx, query, blockerID, blockedID, reason).Scan(
		&entry.ID,
		&entry.BlockerID,
		&entry.BlockedID,
		&entry.Reason,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (r *BlockRepository) Delete(ctx context.Context, blockerID int64, blockedID int64) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM blocked_users
		WHERE blocker_id = $1 AND blocked_id = $2
	`, blockerID, blockedID)
	return err
}

// Exists gates every send, so it stays a single indexed point lookup.
func (r *BlockRepository) Exists(ctx context.Context, blockerID int64, blockedID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blocked_users
			WHERE blocker_id = $1 AND blocked_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, blockerID, blockedID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *BlockRepository) ListForBlocker(ctx context.Context, blockerID int64) ([]models.BlockEntry, error) {
	query := `
		SELECT b.id, b.blocker_id, b.blocked_id, u.username, b.reason, b.created_at
		FROM blocked_users b
		JOIN users u ON u.id = b.blocked_id
		WHERE b.blocker_id = $1
		ORDER BY b.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, blockerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.BlockEntry, 0)
	for rows.Next() {
		var entry models.BlockEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.BlockerID,
			&entry.BlockedID,
			&entry.Blocked,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
