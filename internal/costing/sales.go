package costing

import (
	"context"
	"time"
)

// DefaultSalesPageSize bounds a single sales query.
const DefaultSalesPageSize = 5000

// SalesQuery scopes a sales extraction. From is inclusive and To exclusive;
// both are instants already resolved from the tenant's local calendar days.
type SalesQuery struct {
	TenantID        int64
	From            time.Time
	To              time.Time
	Statuses        []SaleStatus
	ProductIDs      []int64
	SalesCategoryID *int64
}

// SalesCursor is the keyset position after the last row of a page.
type SalesCursor struct {
	CreatedAt time.Time
	ID        int64
}

// IsZero reports whether the cursor points at the start of the range.
func (c SalesCursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == 0
}

// SalesSource reads one page of sold line items ordered by (created_at, id).
type SalesSource interface {
	SoldLineItemsPage(ctx context.Context, query SalesQuery, after SalesCursor, limit int) ([]SoldLineItem, error)
}

// SalesExtractor pages through a SalesSource until the range is exhausted.
type SalesExtractor struct {
	source   SalesSource
	pageSize int
}

// NewSalesExtractor builds an extractor; non-positive page sizes use the default.
func NewSalesExtractor(source SalesSource, pageSize int) *SalesExtractor {
	if pageSize <= 0 {
		pageSize = DefaultSalesPageSize
	}
	return &SalesExtractor{source: source, pageSize: pageSize}
}

// Extract returns every consuming line item in the query range.
func (e *SalesExtractor) Extract(ctx context.Context, query SalesQuery) ([]SoldLineItem, error) {
	if len(query.Statuses) == 0 {
		query.Statuses = ConsumingStatuses
	}
	var (
		items  []SoldLineItem
		cursor SalesCursor
	)
	for {
		page, err := e.source.SoldLineItemsPage(ctx, query, cursor, e.pageSize)
		if err != nil {
			return nil, storageError("load sold line items", err)
		}
		for _, item := range page {
			if item.Status.Consuming() {
				items = append(items, item)
			}
		}
		if len(page) < e.pageSize {
			return items, nil
		}
		last := page[len(page)-1]
		cursor = SalesCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		if err := ctx.Err(); err != nil {
			return nil, storageError("load sold line items", err)
		}
	}
}
