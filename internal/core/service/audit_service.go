package service

import (
	"context"

	"github.com/vintrack/cellar/internal/core/domain"
	"github.com/vintrack/cellar/internal/port"
)

type AuditService struct {
	repo port.AuditRepository
}

func NewAuditService(repo port.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) Record(ctx context.Context, entry domain.AuditLog) (*domain.AuditLog, error) {
	return s.repo.AppendAudit(ctx, entry)
}

// List scopes non-admin callers to their own trail; the user filter is
// honored for admins only.
func (s *AuditService) List(ctx context.Context, caller *domain.User, f domain.AuditFilter, page, pageSize int) (*domain.AuditPage, error) {
	if caller.Role != domain.RoleAdmin {
		f.UserID = caller.ID
	}
	page, pageSize = clampPage(page, pageSize)
	return s.repo.ListAudits(ctx, f, page, pageSize)
}

func (s *AuditService) Get(ctx context.Context, caller *domain.User, id int64) (*domain.AuditLog, error) {
	entry, err := s.repo.GetAudit(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleAdmin && entry.UserID != caller.ID {
		return nil, domain.ErrForbidden
	}
	return entry, nil
}
