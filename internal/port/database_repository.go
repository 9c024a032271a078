package port

import (
	"context"
	"time"

	"github.com/vintrack/cellar/internal/core/domain"
)

type LedgerRepository interface {
	// ApplyMovement records the movement, adjusts the wine's current stock and
	// appends the matching audit entry as one atomic unit; either all three
	// happen or none do. The wine row is locked for the duration, so
	// concurrent movements against the same wine serialize. Returns
	// domain.ErrWineNotFound or *domain.InsufficientStockError.
	ApplyMovement(ctx context.Context, mv domain.Movement) (*domain.Movement, error)

	// GetWine retrieves a wine by ID, domain.ErrWineNotFound if absent.
	GetWine(ctx context.Context, id int64) (*domain.Wine, error)

	// GetMovement retrieves one ledger entry enriched with display names.
	GetMovement(ctx context.Context, id int64) (*domain.Movement, error)

	// ListMovements returns one page of the ledger, newest first
	// (created_at DESC, id DESC), enriched with display names.
	ListMovements(ctx context.Context, f domain.MovementFilter, page, pageSize int) (*domain.MovementPage, error)

	// MovementsForWine returns the wine's full history, newest first.
	MovementsForWine(ctx context.Context, wineID int64) ([]domain.Movement, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// CreateUser inserts a new account, domain.ErrEmailTaken on a duplicate email.
	CreateUser(ctx context.Context, u domain.User) (*domain.User, error)

	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

type AuditRepository interface {
	// AppendAudit is a pure append; persistence failure is its only failure mode.
	AppendAudit(ctx context.Context, entry domain.AuditLog) (*domain.AuditLog, error)

	GetAudit(ctx context.Context, id int64) (*domain.AuditLog, error)

	// ListAudits returns one page, newest first, enriched with actor names.
	ListAudits(ctx context.Context, f domain.AuditFilter, page, pageSize int) (*domain.AuditPage, error)
}

type ReportRepository interface {
	Summary(ctx context.Context) (*domain.Summary, error)

	// TrendSums returns per-day direction sums for movements with
	// from <= created_at < to. Days without movements are absent; the caller
	// zero-fills.
	TrendSums(ctx context.Context, from, to time.Time) ([]domain.TrendPoint, error)

	Distribution(ctx context.Context, dim domain.Dimension) ([]domain.DistributionBucket, error)

	// LowStock returns wines at or under their threshold, most urgent first.
	LowStock(ctx context.Context) ([]domain.Wine, error)
}
