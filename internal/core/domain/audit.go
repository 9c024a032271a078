package domain

import "time"

type ActionType string

const (
	ActionLogin          ActionType = "login"
	ActionLogout         ActionType = "logout"
	ActionStockIn        ActionType = "stock_in"
	ActionStockOut       ActionType = "stock_out"
	ActionCreate         ActionType = "create"
	ActionUpdate         ActionType = "update"
	ActionDelete         ActionType = "delete"
	ActionStatusChange   ActionType = "status_change"
	ActionPasswordChange ActionType = "password_change"
)

// AuditLog is an append-only record of one mutating action. UserID is zero
// when the actor is unknown.
type AuditLog struct {
	ID         int64
	UserID     int64
	ActionType ActionType
	EntityType string
	EntityID   int64
	Details    string // JSON snapshot of before/after state
	IPAddress  string
	CreatedAt  time.Time

	// Joined at read time, never stored.
	UserName string
}

// AuditFilter narrows an audit listing. Zero values mean "no filter".
type AuditFilter struct {
	UserID     int64
	ActionType ActionType
	EntityType string
	From       time.Time
	To         time.Time
}

type AuditPage struct {
	Items      []AuditLog
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}
