package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vintrack/cellar/internal/core/domain"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'user',
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
	)`,
	`CREATE TABLE IF NOT EXISTS wines (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		name VARCHAR(255) NOT NULL,
		vintage_year INT NOT NULL,
		region VARCHAR(255) NOT NULL,
		grape_variety VARCHAR(255),
		price DECIMAL(12,2),
		supplier VARCHAR(255),
		storage_location VARCHAR(255),
		current_stock INT NOT NULL DEFAULT 0,
		low_stock_threshold INT NOT NULL DEFAULT 10,
		notes TEXT,
		created_by BIGINT,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		FOREIGN KEY (created_by) REFERENCES users(id)
	)`,
	`CREATE TABLE IF NOT EXISTS movements (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		wine_id BIGINT NOT NULL,
		direction VARCHAR(3) NOT NULL,
		quantity INT NOT NULL,
		reason TEXT,
		performed_by BIGINT,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		FOREIGN KEY (wine_id) REFERENCES wines(id) ON DELETE CASCADE,
		FOREIGN KEY (performed_by) REFERENCES users(id),
		INDEX idx_movements_created (created_at),
		INDEX idx_movements_wine (wine_id)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		user_id BIGINT,
		action_type VARCHAR(32) NOT NULL,
		entity_type VARCHAR(32),
		entity_id BIGINT,
		details TEXT,
		ip_address VARCHAR(64),
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		FOREIGN KEY (user_id) REFERENCES users(id),
		INDEX idx_audit_created (created_at)
	)`,
}

// EnsureSchema creates the tables if they do not exist.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

type movementDetails struct {
	WineName string `json:"wine_name"`
	Quantity int    `json:"quantity"`
	OldStock int    `json:"old_stock"`
	NewStock int    `json:"new_stock"`
	Reason   string `json:"reason,omitempty"`
}

// ApplyMovement runs the whole read-check-write-append-audit sequence inside
// one transaction, with the wine row locked so concurrent movements against
// the same wine serialize. Movements against different wines do not block
// each other.
func (m *MySQLAdapter) ApplyMovement(ctx context.Context, mv domain.Movement) (*domain.Movement, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var wineName string
	var oldStock int
	err = tx.QueryRowContext(ctx,
		`SELECT name, current_stock FROM wines WHERE id = ? FOR UPDATE`, mv.WineID,
	).Scan(&wineName, &oldStock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock wine: %w", err)
	}

	newStock := oldStock
	action := domain.ActionStockIn
	switch mv.Direction {
	case domain.DirectionIn:
		newStock += mv.Quantity
	case domain.DirectionOut:
		if mv.Quantity > oldStock {
			return nil, &domain.InsufficientStockError{Current: oldStock}
		}
		newStock -= mv.Quantity
		action = domain.ActionStockOut
	default:
		return nil, fmt.Errorf("unknown direction %q", mv.Direction)
	}

	createdAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO movements (wine_id, direction, quantity, reason, performed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		mv.WineID, mv.Direction, mv.Quantity, nullString(mv.Reason), nullID(mv.PerformedBy), createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert movement: %w", err)
	}
	movementID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("movement id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wines SET current_stock = ?, updated_at = ? WHERE id = ?`,
		newStock, createdAt, mv.WineID,
	); err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}

	details, err := json.Marshal(movementDetails{
		WineName: wineName,
		Quantity: mv.Quantity,
		OldStock: oldStock,
		NewStock: newStock,
		Reason:   mv.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("encode audit details: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, action_type, entity_type, entity_id, details, created_at)
		VALUES (?, ?, 'wine', ?, ?, ?)`,
		nullID(mv.PerformedBy), action, mv.WineID, string(details), createdAt,
	); err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}

	var performerName sql.NullString
	if mv.PerformedBy != 0 {
		err := tx.QueryRowContext(ctx,
			`SELECT name FROM users WHERE id = ?`, mv.PerformedBy,
		).Scan(&performerName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resolve performer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	out := mv
	out.ID = movementID
	out.CreatedAt = createdAt
	out.WineName = wineName
	out.PerformerName = performerName.String
	return &out, nil
}

const wineColumns = `id, name, vintage_year, region, grape_variety, price, supplier,
	storage_location, current_stock, low_stock_threshold, notes, created_by, created_at, updated_at`

func (m *MySQLAdapter) GetWine(ctx context.Context, id int64) (*domain.Wine, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+wineColumns+` FROM wines WHERE id = ?`, id)
	w, err := scanWine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query wine: %w", err)
	}
	return w, nil
}

const movementSelect = `
	SELECT m.id, m.wine_id, m.direction, m.quantity, m.reason, m.performed_by, m.created_at,
	       w.name, COALESCE(u.name, '')
	FROM movements m
	JOIN wines w ON w.id = m.wine_id
	LEFT JOIN users u ON u.id = m.performed_by`

func (m *MySQLAdapter) GetMovement(ctx context.Context, id int64) (*domain.Movement, error) {
	row := m.db.QueryRowContext(ctx, movementSelect+` WHERE m.id = ?`, id)
	mv, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMovementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query movement: %w", err)
	}
	return mv, nil
}

func (m *MySQLAdapter) ListMovements(ctx context.Context, f domain.MovementFilter, page, pageSize int) (*domain.MovementPage, error) {
	where, args := movementWhere(f)

	var total int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM movements m`+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count movements: %w", err)
	}

	query := movementSelect + where +
		` ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?`
	rows, err := m.db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	items := []domain.Movement{}
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		items = append(items, *mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}

	return &domain.MovementPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

func (m *MySQLAdapter) MovementsForWine(ctx context.Context, wineID int64) ([]domain.Movement, error) {
	if _, err := m.GetWine(ctx, wineID); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx,
		movementSelect+` WHERE m.wine_id = ? ORDER BY m.created_at DESC, m.id DESC`, wineID)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	items := []domain.Movement{}
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		items = append(items, *mv)
	}
	return items, rows.Err()
}

func movementWhere(f domain.MovementFilter) (string, []any) {
	var conds []string
	var args []any
	if f.WineID != 0 {
		conds = append(conds, "m.wine_id = ?")
		args = append(args, f.WineID)
	}
	if f.Direction != "" {
		conds = append(conds, "m.direction = ?")
		args = append(args, f.Direction)
	}
	if f.PerformedBy != 0 {
		conds = append(conds, "m.performed_by = ?")
		args = append(args, f.PerformedBy)
	}
	if !f.From.IsZero() {
		conds = append(conds, "m.created_at >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		conds = append(conds, "m.created_at <= ?")
		args = append(args, f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(r rowScanner) (*domain.Movement, error) {
	var mv domain.Movement
	var reason sql.NullString
	var performedBy sql.NullInt64
	err := r.Scan(&mv.ID, &mv.WineID, &mv.Direction, &mv.Quantity, &reason,
		&performedBy, &mv.CreatedAt, &mv.WineName, &mv.PerformerName)
	if err != nil {
		return nil, err
	}
	mv.Reason = reason.String
	mv.PerformedBy = performedBy.Int64
	return &mv, nil
}

func scanWine(r rowScanner) (*domain.Wine, error) {
	var w domain.Wine
	var variety, price, supplier, location, notes sql.NullString
	var createdBy sql.NullInt64
	err := r.Scan(&w.ID, &w.Name, &w.VintageYear, &w.Region, &variety, &price,
		&supplier, &location, &w.CurrentStock, &w.LowStockThreshold, &notes,
		&createdBy, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.GrapeVariety = variety.String
	w.Supplier = supplier.String
	w.StorageLocation = location.String
	w.Notes = notes.String
	w.CreatedBy = createdBy.Int64
	if price.Valid {
		p, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		w.Price = p
	}
	return &w, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
