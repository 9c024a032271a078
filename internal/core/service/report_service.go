package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vintrack/cellar/internal/core/domain"
	"github.com/vintrack/cellar/internal/port"
)

const maxTrendDays = 365

// ReportService derives read-only statistics from the ledger and wine state.
// Nothing here mutates; a concurrently running movement may or may not be
// reflected in a given read.
type ReportService struct {
	repo     port.ReportRepository
	cache    port.CacheRepository
	cacheTTL time.Duration
	now      func() time.Time
}

func NewReportService(repo port.ReportRepository, cache port.CacheRepository, cacheTTL time.Duration) *ReportService {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &ReportService{repo: repo, cache: cache, cacheTTL: cacheTTL, now: time.Now}
}

// Summary is cached for a short TTL; cache failures degrade to a direct read.
func (s *ReportService) Summary(ctx context.Context) (*domain.Summary, error) {
	if cached, ok, err := s.cache.GetSummary(ctx); err == nil && ok {
		return cached, nil
	}

	sum, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetSummary(ctx, sum, s.cacheTTL)
	return sum, nil
}

// Trends returns exactly one bucket per calendar day (UTC) for the last
// `days` days ending today, oldest first. Days without movements report zero.
func (s *ReportService) Trends(ctx context.Context, days int) ([]domain.TrendPoint, error) {
	if days < 1 || days > maxTrendDays {
		return nil, &domain.ValidationError{Field: "days", Reason: fmt.Sprintf("must be between 1 and %d", maxTrendDays)}
	}

	now := s.now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -days)

	raw, err := s.repo.TrendSums(ctx, start, end)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]domain.TrendPoint, len(raw))
	for _, p := range raw {
		byDay[p.Date] = p
	}

	points := make([]domain.TrendPoint, 0, days)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		day := d.Format("2006-01-02")
		p, ok := byDay[day]
		if !ok {
			p = domain.TrendPoint{Date: day}
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *ReportService) Distribution(ctx context.Context, dimension string) ([]domain.DistributionBucket, error) {
	switch dim := domain.Dimension(dimension); dim {
	case domain.DimensionRegion, domain.DimensionVariety, domain.DimensionSupplier:
		return s.repo.Distribution(ctx, dim)
	default:
		return nil, &domain.ValidationError{Field: "dimension", Reason: fmt.Sprintf("unknown dimension %q", dimension)}
	}
}

func (s *ReportService) LowStock(ctx context.Context) ([]domain.Wine, error) {
	return s.repo.LowStock(ctx)
}
