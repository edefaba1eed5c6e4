package costing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lifecycle tags master data rows as live or soft-deleted. It is checked once
// while indices are built; nothing downstream looks at deletion again.
type Lifecycle uint8

const (
	// LifecycleActive marks a live record.
	LifecycleActive Lifecycle = iota
	// LifecycleDeleted marks a soft-deleted record.
	LifecycleDeleted
)

// LifecycleOf maps an is_deleted column to a Lifecycle tag.
func LifecycleOf(deleted bool) Lifecycle {
	if deleted {
		return LifecycleDeleted
	}
	return LifecycleActive
}

// Live reports whether the record participates in computation.
func (l Lifecycle) Live() bool {
	return l == LifecycleActive
}

// Tenant is an isolated business account.
type Tenant struct {
	ID       int64
	Name     string
	Timezone string
}

// Product doubles as a finished good and as an ingredient when a BOM edge
// points at it. CostPrice is the cost of one DefaultUnitID.
type Product struct {
	ID              int64               `json:"id"`
	Name            string              `json:"name"`
	CategoryID      *int64              `json:"category_id,omitempty"`
	StockCategoryID *int64              `json:"stock_category_id,omitempty"`
	DefaultUnitID   *int64              `json:"default_unit_id,omitempty"`
	CostPrice       decimal.NullDecimal `json:"cost_price"`
	Lifecycle       Lifecycle           `json:"lifecycle"`
}

// BOMEdge is one recipe line: Amount of IngredientID (in UnitID) consumed per
// unit sold of ProductID.
type BOMEdge struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	IngredientID int64           `json:"ingredient_id"`
	Amount       decimal.Decimal `json:"amount"`
	UnitID       int64           `json:"unit_id"`
	Lifecycle    Lifecycle       `json:"lifecycle"`
}

// Unit is a measurement unit. Ratio is how many BaseUnitID equal one of this
// unit; a unit without base is its own base.
type Unit struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	ShortName  string          `json:"short_name"`
	BaseUnitID *int64          `json:"base_unit_id,omitempty"`
	Ratio      decimal.Decimal `json:"ratio"`
	Lifecycle  Lifecycle       `json:"lifecycle"`
}

// Label returns the display label of the unit.
func (u Unit) Label() string {
	if u.ShortName != "" {
		return u.ShortName
	}
	return u.Name
}

// IsBase reports whether the unit roots its own conversion chain.
func (u Unit) IsBase() bool {
	return u.BaseUnitID == nil || *u.BaseUnitID == u.ID
}

// StockCategory groups ingredients for reporting.
type StockCategory struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Lifecycle Lifecycle `json:"lifecycle"`
}

// SaleStatus enumerates sold line item states.
type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusServed    SaleStatus = "served"
	SaleStatusPaid      SaleStatus = "paid"
	SaleStatusCancelled SaleStatus = "cancelled"
	SaleStatusReturned  SaleStatus = "returned"
	SaleStatusWaste     SaleStatus = "waste"
)

// ConsumingStatuses lists statuses that deplete stock.
var ConsumingStatuses = []SaleStatus{SaleStatusCompleted, SaleStatusServed, SaleStatusPaid}

// Consuming reports whether the status represents an actual stock-depleting sale.
func (s SaleStatus) Consuming() bool {
	switch s {
	case SaleStatusCompleted, SaleStatusServed, SaleStatusPaid:
		return true
	default:
		return false
	}
}

// SoldLineItem is a single sold product line.
type SoldLineItem struct {
	ID        int64
	ProductID int64
	Quantity  int64
	CreatedAt time.Time
	Status    SaleStatus
}

// Catalog bundles the master data a report resolves against. It is the unit
// of caching per tenant.
type Catalog struct {
	TenantID   int64           `json:"tenant_id"`
	Units      []Unit          `json:"units"`
	Products   []Product       `json:"products"`
	Categories []StockCategory `json:"categories"`
	Edges      []BOMEdge       `json:"edges"`
}
