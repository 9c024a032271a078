package domain

import "github.com/shopspring/decimal"

type Summary struct {
	WineCount       int             `json:"wine_count"`
	TotalStock      int             `json:"total_stock"`
	TotalValue      decimal.Decimal `json:"total_value"`
	LowStockCount   int             `json:"low_stock_count"`
	OutOfStockCount int             `json:"out_of_stock_count"`
}

// TrendPoint sums movement quantities per direction for one calendar day.
type TrendPoint struct {
	Date     string `json:"date"` // YYYY-MM-DD
	StockIn  int    `json:"stock_in"`
	StockOut int    `json:"stock_out"`
}

type DistributionBucket struct {
	Label      string `json:"label"`
	TotalStock int    `json:"total_stock"`
}

type Dimension string

const (
	DimensionRegion   Dimension = "region"
	DimensionVariety  Dimension = "variety"
	DimensionSupplier Dimension = "supplier"
)
