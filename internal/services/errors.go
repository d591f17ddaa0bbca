package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrForbidden           = errors.New("forbidden")
	ErrBlocked             = errors.New("delivery rejected")
	ErrRecipientUnknown    = errors.New("recipient unknown")
	ErrSelfAction          = errors.New("action targets the acting user")
	ErrNotParticipant      = errors.New("not a conversation participant")
	ErrTemplateNameTaken   = errors.New("template name already exists")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
	ErrNotAcknowledged     = errors.New("alert not acknowledged")
	ErrAlreadyResolved     = errors.New("alert already resolved")
	ErrAlreadyTerminal     = errors.New("scheduled message already terminal")
)

const transientRetryBackoff = 150 * time.Millisecond

// withRetry reruns fn once after a short backoff when the failure looks
// transient (connection-level, or a serialization conflict). Anything
// else is surfaced as-is.
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !isTransient(err) {
		return err
	}

	select {
	case <-ctx.Done():
		return err
	case <-time.After(transientRetryBackoff):
	}

	return fn()
}

func isTransient(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
