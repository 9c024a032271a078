package domain

import (
	"errors"
	"fmt"
)

var (
	ErrWineNotFound     = errors.New("wine not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrMovementNotFound = errors.New("movement not found")
	ErrAuditLogNotFound = errors.New("audit log not found")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrForbidden          = errors.New("forbidden")

	ErrEmailTaken = errors.New("email already registered")
)

// InsufficientStockError rejects a stock-out that would drive stock negative.
// Current carries the stock observed inside the transaction, for caller display.
type InsufficientStockError struct {
	Current int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available", e.Current)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
