package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/vintrack/cellar/internal/core/domain"
)

const mysqlDupEntry = 1062

const userColumns = `id, email, password_hash, name, role, is_active, created_at, updated_at`

func (m *MySQLAdapter) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	now := time.Now().UTC()
	res, err := m.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.Name, u.Role, u.IsActive, now, now,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDupEntry {
		return nil, domain.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return &u, nil
}

func (m *MySQLAdapter) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := m.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(r rowScanner) (*domain.User, error) {
	var u domain.User
	err := r.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (m *MySQLAdapter) AppendAudit(ctx context.Context, entry domain.AuditLog) (*domain.AuditLog, error) {
	createdAt := time.Now().UTC()
	res, err := m.db.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, action_type, entity_type, entity_id, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullID(entry.UserID), entry.ActionType, nullString(entry.EntityType),
		nullID(entry.EntityID), nullString(entry.Details), nullString(entry.IPAddress), createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("audit id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = createdAt
	return &entry, nil
}

const auditSelect = `
	SELECT a.id, a.user_id, a.action_type, a.entity_type, a.entity_id,
	       a.details, a.ip_address, a.created_at, COALESCE(u.name, '')
	FROM audit_logs a
	LEFT JOIN users u ON u.id = a.user_id`

func (m *MySQLAdapter) GetAudit(ctx context.Context, id int64) (*domain.AuditLog, error) {
	row := m.db.QueryRowContext(ctx, auditSelect+` WHERE a.id = ?`, id)
	entry, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuditLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	return entry, nil
}

func (m *MySQLAdapter) ListAudits(ctx context.Context, f domain.AuditFilter, page, pageSize int) (*domain.AuditPage, error) {
	where, args := auditWhere(f)

	var total int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs a`+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count audits: %w", err)
	}

	query := auditSelect + where + ` ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?`
	rows, err := m.db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("query audits: %w", err)
	}
	defer rows.Close()

	items := []domain.AuditLog{}
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		items = append(items, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audits: %w", err)
	}

	return &domain.AuditPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

func auditWhere(f domain.AuditFilter) (string, []any) {
	var conds []string
	var args []any
	if f.UserID != 0 {
		conds = append(conds, "a.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ActionType != "" {
		conds = append(conds, "a.action_type = ?")
		args = append(args, f.ActionType)
	}
	if f.EntityType != "" {
		conds = append(conds, "a.entity_type = ?")
		args = append(args, f.EntityType)
	}
	if !f.From.IsZero() {
		conds = append(conds, "a.created_at >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		conds = append(conds, "a.created_at <= ?")
		args = append(args, f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAudit(r rowScanner) (*domain.AuditLog, error) {
	var entry domain.AuditLog
	var userID, entityID sql.NullInt64
	var entityType, details, ip sql.NullString
	err := r.Scan(&entry.ID, &userID, &entry.ActionType, &entityType, &entityID,
		&details, &ip, &entry.CreatedAt, &entry.UserName)
	if err != nil {
		return nil, err
	}
	entry.UserID = userID.Int64
	entry.EntityID = entityID.Int64
	entry.EntityType = entityType.String
	entry.Details = details.String
	entry.IPAddress = ip.String
	return &entry, nil
}
