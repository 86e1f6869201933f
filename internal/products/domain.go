// Package products exposes the fuel product catalog consumed by revenue
// computation. Product management itself lives outside this core.
package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable fuel product with its current pump price.
type Product struct {
	ID        int64
	Name      string
	UnitPrice decimal.Decimal
	// IsPMS marks premium motor spirit products tracked via pump meters.
	IsPMS     bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
