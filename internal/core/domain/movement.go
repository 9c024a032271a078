package domain

import "time"

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Movement is one ledger entry. Rows are immutable once written; they are
// removed only when their wine is deleted (cascade).
type Movement struct {
	ID          int64
	WineID      int64
	Direction   Direction
	Quantity    int
	Reason      string
	PerformedBy int64
	CreatedAt   time.Time

	// Joined at read time, never stored.
	WineName      string
	PerformerName string
}

// MovementFilter narrows a ledger listing. Zero values mean "no filter".
type MovementFilter struct {
	WineID      int64
	Direction   Direction
	PerformedBy int64
	From        time.Time
	To          time.Time
}

type MovementPage struct {
	Items      []Movement
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}
