// Package store keeps the audit trail of receipt verification attempts.
package store

import (
	"context"
	"time"

	"resumepay/models"
)

const (
	// DefaultListLimit is used when ListAttempts gets a zero limit.
	DefaultListLimit = 50
	// MaxListLimit caps ListAttempts.
	MaxListLimit = 500
)

// Store persists verification attempts. Implementations are safe for concurrent use.
type Store interface {
	SaveAttempt(ctx context.Context, a *models.VerificationAttempt) error
	// ListAttempts returns the most recent attempts first.
	ListAttempts(ctx context.Context, limit int) ([]models.VerificationAttempt, error)
	// ListBetween returns every attempt created in [start, end), oldest first.
	ListBetween(ctx context.Context, start, end time.Time) ([]models.VerificationAttempt, error)
	Close() error
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
