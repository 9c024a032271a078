package port

import (
	"context"
	"time"

	"github.com/vintrack/cellar/internal/core/domain"
)

type CacheRepository interface {
	// GetSummary returns the cached dashboard summary; ok is false on a miss.
	GetSummary(ctx context.Context) (s *domain.Summary, ok bool, err error)

	// SetSummary caches the summary for ttl.
	SetSummary(ctx context.Context, s *domain.Summary, ttl time.Duration) error

	// MarkResetTokenUsed marks a reset-token ID consumed, returns false if it
	// was already consumed.
	MarkResetTokenUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}
