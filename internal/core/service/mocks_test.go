package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vintrack/cellar/internal/core/domain"
)

// Mock LedgerRepository. The single mutex stands in for the per-row lock the
// MySQL adapter takes, so the check-then-act sequence is serialized the same
// way.
type mockLedgerRepo struct {
	mu        sync.Mutex
	wines     map[int64]*domain.Wine
	movements []domain.Movement
	audits    []domain.AuditLog
	nextID    int64
}

func newMockLedgerRepo(wines ...*domain.Wine) *mockLedgerRepo {
	m := &mockLedgerRepo{wines: make(map[int64]*domain.Wine)}
	for _, w := range wines {
		m.wines[w.ID] = w
	}
	return m
}

func (m *mockLedgerRepo) ApplyMovement(ctx context.Context, mv domain.Movement) (*domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wines[mv.WineID]
	if !ok {
		return nil, domain.ErrWineNotFound
	}

	oldStock := w.CurrentStock
	action := domain.ActionStockIn
	switch mv.Direction {
	case domain.DirectionIn:
		w.CurrentStock += mv.Quantity
	case domain.DirectionOut:
		if mv.Quantity > w.CurrentStock {
			return nil, &domain.InsufficientStockError{Current: w.CurrentStock}
		}
		w.CurrentStock -= mv.Quantity
		action = domain.ActionStockOut
	}

	m.nextID++
	out := mv
	out.ID = m.nextID
	out.CreatedAt = time.Now()
	out.WineName = w.Name
	m.movements = append(m.movements, out)

	details, _ := json.Marshal(map[string]any{
		"wine_name": w.Name,
		"quantity":  mv.Quantity,
		"old_stock": oldStock,
		"new_stock": w.CurrentStock,
		"reason":    mv.Reason,
	})
	m.audits = append(m.audits, domain.AuditLog{
		UserID:     mv.PerformedBy,
		ActionType: action,
		EntityType: "wine",
		EntityID:   mv.WineID,
		Details:    string(details),
		CreatedAt:  out.CreatedAt,
	})

	return &out, nil
}

func (m *mockLedgerRepo) GetWine(ctx context.Context, id int64) (*domain.Wine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wines[id]
	if !ok {
		return nil, domain.ErrWineNotFound
	}
	copied := *w
	return &copied, nil
}

func (m *mockLedgerRepo) GetMovement(ctx context.Context, id int64) (*domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mv := range m.movements {
		if mv.ID == id {
			copied := mv
			return &copied, nil
		}
	}
	return nil, domain.ErrMovementNotFound
}

func (m *mockLedgerRepo) ListMovements(ctx context.Context, f domain.MovementFilter, page, pageSize int) (*domain.MovementPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Newest first, matching the ordering contract.
	items := []domain.Movement{}
	for i := len(m.movements) - 1; i >= 0; i-- {
		mv := m.movements[i]
		if f.WineID != 0 && mv.WineID != f.WineID {
			continue
		}
		if f.Direction != "" && mv.Direction != f.Direction {
			continue
		}
		items = append(items, mv)
	}
	return &domain.MovementPage{
		Items:      items,
		Total:      len(items),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (len(items) + pageSize - 1) / pageSize,
	}, nil
}

func (m *mockLedgerRepo) MovementsForWine(ctx context.Context, wineID int64) ([]domain.Movement, error) {
	if _, err := m.GetWine(ctx, wineID); err != nil {
		return nil, err
	}
	page, _ := m.ListMovements(ctx, domain.MovementFilter{WineID: wineID}, 1, maxPageSize)
	return page.Items, nil
}

func (m *mockLedgerRepo) counts() (movements, audits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.movements), len(m.audits)
}

// Mock UserRepository.
type mockUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*domain.User
	nextID int64
}

func newMockUserRepo(users ...*domain.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[int64]*domain.User)}
	for _, u := range users {
		m.users[u.ID] = u
		if u.ID > m.nextID {
			m.nextID = u.ID
		}
	}
	return m
}

func (m *mockUserRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockUserRepo) CreateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, domain.ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = &u
	copied := u
	return &copied, nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *mockUserRepo) remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

// Mock AuditRepository.
type mockAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
	nextID  int64

	lastFilter domain.AuditFilter
}

func (m *mockAuditRepo) AppendAudit(ctx context.Context, entry domain.AuditLog) (*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	copied := entry
	return &copied, nil
}

func (m *mockAuditRepo) GetAudit(ctx context.Context, id int64) (*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.entries {
		if entry.ID == id {
			copied := entry
			return &copied, nil
		}
	}
	return nil, domain.ErrAuditLogNotFound
}

func (m *mockAuditRepo) ListAudits(ctx context.Context, f domain.AuditFilter, page, pageSize int) (*domain.AuditPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f

	items := []domain.AuditLog{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		entry := m.entries[i]
		if f.UserID != 0 && entry.UserID != f.UserID {
			continue
		}
		if f.ActionType != "" && entry.ActionType != f.ActionType {
			continue
		}
		items = append(items, entry)
	}
	return &domain.AuditPage{
		Items:      items,
		Total:      len(items),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (len(items) + pageSize - 1) / pageSize,
	}, nil
}

func (m *mockAuditRepo) actions() []domain.ActionType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ActionType, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry.ActionType)
	}
	return out
}

// Mock CacheRepository.
type mockCacheRepo struct {
	mu      sync.Mutex
	summary *domain.Summary
	used    map[string]bool
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{used: make(map[string]bool)}
}

func (m *mockCacheRepo) GetSummary(ctx context.Context) (*domain.Summary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary == nil {
		return nil, false, nil
	}
	copied := *m.summary
	return &copied, true, nil
}

func (m *mockCacheRepo) SetSummary(ctx context.Context, s *domain.Summary, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.summary = &copied
	return nil
}

func (m *mockCacheRepo) MarkResetTokenUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used[jti] {
		return false, nil
	}
	m.used[jti] = true
	return true, nil
}

// Mock ReportRepository.
type mockReportRepo struct {
	mu           sync.Mutex
	summary      domain.Summary
	summaryCalls int
	trendPoints  []domain.TrendPoint
	buckets      []domain.DistributionBucket
	lowStock     []domain.Wine
}

func (m *mockReportRepo) Summary(ctx context.Context) (*domain.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaryCalls++
	copied := m.summary
	return &copied, nil
}

func (m *mockReportRepo) TrendSums(ctx context.Context, from, to time.Time) ([]domain.TrendPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trendPoints, nil
}

func (m *mockReportRepo) Distribution(ctx context.Context, dim domain.Dimension) ([]domain.DistributionBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buckets, nil
}

func (m *mockReportRepo) LowStock(ctx context.Context) ([]domain.Wine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lowStock, nil
}
