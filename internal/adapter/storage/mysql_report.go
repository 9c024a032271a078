package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vintrack/cellar/internal/core/domain"
)

func (m *MySQLAdapter) Summary(ctx context.Context) (*domain.Summary, error) {
	var s domain.Summary
	var totalValue sql.NullString
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(current_stock), 0),
		       COALESCE(SUM(COALESCE(price, 0) * current_stock), 0),
		       COALESCE(SUM(current_stock > 0 AND current_stock <= low_stock_threshold), 0),
		       COALESCE(SUM(current_stock = 0), 0)
		FROM wines`,
	).Scan(&s.WineCount, &s.TotalStock, &totalValue, &s.LowStockCount, &s.OutOfStockCount)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	if totalValue.Valid {
		v, err := decimal.NewFromString(totalValue.String)
		if err != nil {
			return nil, fmt.Errorf("parse total value: %w", err)
		}
		s.TotalValue = v.Round(2)
	}
	return &s, nil
}

func (m *MySQLAdapter) TrendSums(ctx context.Context, from, to time.Time) ([]domain.TrendPoint, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT DATE_FORMAT(created_at, '%Y-%m-%d') AS day,
		       COALESCE(SUM(CASE WHEN direction = 'in' THEN quantity ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN direction = 'out' THEN quantity ELSE 0 END), 0)
		FROM movements
		WHERE created_at >= ? AND created_at < ?
		GROUP BY day
		ORDER BY day`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query trends: %w", err)
	}
	defer rows.Close()

	var points []domain.TrendPoint
	for rows.Next() {
		var p domain.TrendPoint
		if err := rows.Scan(&p.Date, &p.StockIn, &p.StockOut); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

var dimensionColumns = map[domain.Dimension]string{
	domain.DimensionRegion:   "region",
	domain.DimensionVariety:  "grape_variety",
	domain.DimensionSupplier: "supplier",
}

func (m *MySQLAdapter) Distribution(ctx context.Context, dim domain.Dimension) ([]domain.DistributionBucket, error) {
	col, ok := dimensionColumns[dim]
	if !ok {
		return nil, &domain.ValidationError{Field: "dimension", Reason: fmt.Sprintf("unknown dimension %q", dim)}
	}

	// col comes from the whitelist above, never from the caller.
	query := fmt.Sprintf(`
		SELECT COALESCE(NULLIF(%s, ''), 'unknown'), COALESCE(SUM(current_stock), 0)
		FROM wines
		GROUP BY 1
		ORDER BY 2 DESC, 1`, col)

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distribution: %w", err)
	}
	defer rows.Close()

	buckets := []domain.DistributionBucket{}
	for rows.Next() {
		var b domain.DistributionBucket
		if err := rows.Scan(&b.Label, &b.TotalStock); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (m *MySQLAdapter) LowStock(ctx context.Context) ([]domain.Wine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+wineColumns+`
		FROM wines
		WHERE current_stock <= low_stock_threshold
		ORDER BY current_stock ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query low stock: %w", err)
	}
	defer rows.Close()

	wines := []domain.Wine{}
	for rows.Next() {
		w, err := scanWine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wine: %w", err)
		}
		wines = append(wines, *w)
	}
	return wines, rows.Err()
}
