package service

import (
	"context"

	"github.com/vintrack/cellar/internal/core/domain"
	"github.com/vintrack/cellar/internal/port"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// LedgerService owns the stock mutation protocol. Each successful mutation
// produces exactly one movement, one stock adjustment and one audit entry;
// the repository applies the three as a single atomic unit.
type LedgerService struct {
	repo port.LedgerRepository
}

func NewLedgerService(repo port.LedgerRepository) *LedgerService {
	return &LedgerService{repo: repo}
}

func (s *LedgerService) StockIn(ctx context.Context, wineID int64, quantity int, reason string, actor *domain.User) (*domain.Movement, error) {
	return s.apply(ctx, wineID, domain.DirectionIn, quantity, reason, actor)
}

func (s *LedgerService) StockOut(ctx context.Context, wineID int64, quantity int, reason string, actor *domain.User) (*domain.Movement, error) {
	return s.apply(ctx, wineID, domain.DirectionOut, quantity, reason, actor)
}

func (s *LedgerService) apply(ctx context.Context, wineID int64, dir domain.Direction, quantity int, reason string, actor *domain.User) (*domain.Movement, error) {
	if quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return s.repo.ApplyMovement(ctx, domain.Movement{
		WineID:      wineID,
		Direction:   dir,
		Quantity:    quantity,
		Reason:      reason,
		PerformedBy: actor.ID,
	})
}

func (s *LedgerService) ListMovements(ctx context.Context, f domain.MovementFilter, page, pageSize int) (*domain.MovementPage, error) {
	page, pageSize = clampPage(page, pageSize)
	return s.repo.ListMovements(ctx, f, page, pageSize)
}

func (s *LedgerService) MovementsForWine(ctx context.Context, wineID int64) ([]domain.Movement, error) {
	return s.repo.MovementsForWine(ctx, wineID)
}

func (s *LedgerService) GetMovement(ctx context.Context, id int64) (*domain.Movement, error) {
	return s.repo.GetMovement(ctx, id)
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
