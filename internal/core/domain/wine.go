package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StockStatus string

const (
	StockStatusOut    StockStatus = "out"
	StockStatusLow    StockStatus = "low"
	StockStatusNormal StockStatus = "normal"
)

type Wine struct {
	ID                int64
	Name              string
	VintageYear       int
	Region            string
	GrapeVariety      string
	Price             decimal.Decimal // zero when the lot has no price
	Supplier          string
	StorageLocation   string
	CurrentStock      int
	LowStockThreshold int
	Notes             string
	CreatedBy         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// StockStatus partitions every wine into exactly one of three buckets:
// out (stock == 0), low (0 < stock <= threshold), normal (stock > threshold).
func (w *Wine) StockStatus() StockStatus {
	switch {
	case w.CurrentStock == 0:
		return StockStatusOut
	case w.CurrentStock <= w.LowStockThreshold:
		return StockStatusLow
	default:
		return StockStatusNormal
	}
}
