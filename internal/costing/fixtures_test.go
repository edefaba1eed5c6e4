package costing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

func ptr(v int64) *int64 { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cost(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

// Unit ids used across tests.
const (
	unitMl int64 = iota + 1
	unitL
	unitG
	unitKg
	unitPcs
)

func baseUnits() []Unit {
	return []Unit{
		{ID: unitMl, Name: "millilitre", ShortName: "ml", Ratio: dec("1")},
		{ID: unitL, Name: "litre", ShortName: "l", BaseUnitID: ptr(unitMl), Ratio: dec("1000")},
		{ID: unitG, Name: "gram", ShortName: "g", Ratio: dec("1")},
		{ID: unitKg, Name: "kilogram", ShortName: "kg", BaseUnitID: ptr(unitG), Ratio: dec("1000")},
		{ID: unitPcs, Name: "piece", ShortName: "pcs", Ratio: dec("1")},
	}
}

// cafeCatalog is a small coffee shop: Latte uses Milk, Croissant uses Flour
// and Butter.
func cafeCatalog() Catalog {
	return Catalog{
		TenantID: 1,
		Units:    baseUnits(),
		Categories: []StockCategory{
			{ID: 10, Name: "Dairy"},
			{ID: 11, Name: "Bakery"},
		},
		Products: []Product{
			{ID: 100, Name: "Latte", CategoryID: ptr(500), DefaultUnitID: ptr(unitPcs)},
			{ID: 101, Name: "Croissant", CategoryID: ptr(501), DefaultUnitID: ptr(unitPcs)},
			{ID: 200, Name: "Milk", StockCategoryID: ptr(10), DefaultUnitID: ptr(unitMl), CostPrice: cost("0.02")},
			{ID: 201, Name: "Flour", StockCategoryID: ptr(11), DefaultUnitID: ptr(unitKg), CostPrice: cost("1.50")},
			{ID: 202, Name: "Butter", StockCategoryID: ptr(10), DefaultUnitID: ptr(unitG), CostPrice: cost("0.01")},
		},
		Edges: []BOMEdge{
			{ID: 1, ProductID: 100, IngredientID: 200, Amount: dec("200"), UnitID: unitMl},
			{ID: 2, ProductID: 101, IngredientID: 201, Amount: dec("80"), UnitID: unitG},
			{ID: 3, ProductID: 101, IngredientID: 202, Amount: dec("30"), UnitID: unitG},
		},
	}
}

func sale(id, productID, qty int64, at time.Time, status SaleStatus) SoldLineItem {
	return SoldLineItem{ID: id, ProductID: productID, Quantity: qty, CreatedAt: at, Status: status}
}

type memoryRepo struct {
	mu       sync.Mutex
	tenants  map[int64]Tenant
	catalog  Catalog
	sales    []SoldLineItem
	salesErr error
	unitsErr error

	unitCalls  int
	salesCalls int
}

func newMemoryRepo(catalog Catalog) *memoryRepo {
	return &memoryRepo{
		tenants: map[int64]Tenant{catalog.TenantID: {ID: catalog.TenantID, Name: "Cafe", Timezone: "UTC"}},
		catalog: catalog,
	}
}

func (r *memoryRepo) Tenant(ctx context.Context, tenantID int64) (Tenant, error) {
	t, ok := r.tenants[tenantID]
	if !ok {
		return Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

func (r *memoryRepo) Units(ctx context.Context, tenantID int64) ([]Unit, error) {
	r.mu.Lock()
	r.unitCalls++
	r.mu.Unlock()
	if r.unitsErr != nil {
		return nil, r.unitsErr
	}
	return append([]Unit(nil), r.catalog.Units...), nil
}

func (r *memoryRepo) Products(ctx context.Context, tenantID int64) ([]Product, error) {
	return append([]Product(nil), r.catalog.Products...), nil
}

func (r *memoryRepo) StockCategories(ctx context.Context, tenantID int64) ([]StockCategory, error) {
	return append([]StockCategory(nil), r.catalog.Categories...), nil
}

func (r *memoryRepo) BOMEdges(ctx context.Context, tenantID int64) ([]BOMEdge, error) {
	return append([]BOMEdge(nil), r.catalog.Edges...), nil
}

func (r *memoryRepo) SoldLineItemsPage(ctx context.Context, q SalesQuery, after SalesCursor, limit int) ([]SoldLineItem, error) {
	r.mu.Lock()
	r.salesCalls++
	r.mu.Unlock()
	if r.salesErr != nil {
		return nil, r.salesErr
	}
	categories := make(map[int64]*int64, len(r.catalog.Products))
	for _, p := range r.catalog.Products {
		categories[p.ID] = p.CategoryID
	}
	statuses := make(map[SaleStatus]bool, len(q.Statuses))
	for _, s := range q.Statuses {
		statuses[s] = true
	}
	products := make(map[int64]bool, len(q.ProductIDs))
	for _, id := range q.ProductIDs {
		products[id] = true
	}

	rows := make([]SoldLineItem, 0, len(r.sales))
	for _, item := range r.sales {
		if item.CreatedAt.Before(q.From) || !item.CreatedAt.Before(q.To) {
			continue
		}
		if !statuses[item.Status] {
			continue
		}
		if len(products) > 0 && !products[item.ProductID] {
			continue
		}
		if q.SalesCategoryID != nil {
			cat := categories[item.ProductID]
			if cat == nil || *cat != *q.SalesCategoryID {
				continue
			}
		}
		if !after.IsZero() {
			if item.CreatedAt.Before(after.CreatedAt) || (item.CreatedAt.Equal(after.CreatedAt) && item.ID <= after.ID) {
				continue
			}
		}
		rows = append(rows, item)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
