package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/repository"
)

// BlockService owns the directional block list. Blocking B as A stops
// B's sends to A; it says nothing about A's sends to B.
type BlockService struct {
	blockRepo *repository.BlockRepository
	userRepo  userReader
}

func NewBlockService(blockRepo *repository.BlockRepository, userRepo userReader) *BlockService {
	return &BlockService{blockRepo: blockRepo, userRepo: userRepo}
}

func (s *BlockService) Block(
	ctx context.Context,
	blockerID int64,
	blockedUsername string,
	reason *string,
) (*models.BlockEntry, error) {
	blocked, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(blockedUsername))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipientUnknown
		}
		return nil, err
	}
	if blocked.ID == blockerID {
		return nil, ErrSelfAction
	}

	entry, err := s.blockRepo.Upsert(ctx, blockerID, blocked.ID, reason)
	if err != nil {
		return nil, err
	}
	entry.Blocked = blocked.Username
	return entry, nil
}

// Unblock is idempotent; unblocking a user who was never blocked is a
// no-op.
func (s *BlockService) Unblock(ctx context.Context, blockerID int64, blockedUsername string) error {
	blocked, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(blockedUsername))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRecipientUnknown
		}
		return err
	}

	return s.blockRepo.Delete(ctx, blockerID, blocked.ID)
}

func (s *BlockService) IsBlocked(ctx context.Context, blockerID int64, blockedID int64) (bool, error) {
	return s.blockRepo.Exists(ctx, blockerID, blockedID)
}

func (s *BlockService) List(ctx context.Context, blockerID int64) ([]models.BlockEntry, error) {
	return s.blockRepo.ListForBlocker(ctx, blockerID)
}
