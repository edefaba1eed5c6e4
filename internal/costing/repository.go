package costing

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	platformdb "github.com/odyssey-erp/odyssey-costing/internal/platform/db"
)

// Schema is the DDL of the tables this package reads.
//
//go:embed schema.sql
var Schema string

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository reads costing master data and sales from PostgreSQL. All reads are
// scoped by tenant_id.
type Repository struct {
	db dbtx
}

var _ RepositoryPort = (*Repository)(nil)

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func newRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

// Migrate applies Schema. It is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return wrap("migrate", err)
	}
	return nil
}

// Tenant returns a live tenant or ErrTenantNotFound.
func (r *Repository) Tenant(ctx context.Context, tenantID int64) (Tenant, error) {
	const query = `SELECT id, name, timezone FROM tenants WHERE id = $1 AND NOT is_deleted`
	var t Tenant
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&t.ID, &t.Name, &t.Timezone)
	if platformdb.IsNotFound(err) {
		return Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return Tenant{}, wrap("load tenant", err)
	}
	return t, nil
}

// Units lists every unit of the tenant, deleted ones flagged.
func (r *Repository) Units(ctx context.Context, tenantID int64) ([]Unit, error) {
	const query = `SELECT id, name, short_name, base_unit_id, ratio, is_deleted
	               FROM units WHERE tenant_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, wrap("load units", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var (
			u       Unit
			base    pgtype.Int8
			ratio   pgtype.Numeric
			deleted bool
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.ShortName, &base, &ratio, &deleted); err != nil {
			return nil, wrap("scan unit", err)
		}
		if u.Ratio, err = requiredDecimal(ratio, "units.ratio"); err != nil {
			return nil, wrap("scan unit", err)
		}
		u.BaseUnitID = int8Ptr(base)
		u.Lifecycle = LifecycleOf(deleted)
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load units", err)
	}
	return units, nil
}

// Products lists every product of the tenant, deleted ones flagged.
func (r *Repository) Products(ctx context.Context, tenantID int64) ([]Product, error) {
	const query = `SELECT id, name, category_id, stock_category_id, default_unit_id, cost_price, is_deleted
	               FROM products WHERE tenant_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, wrap("load products", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var (
			p                     Product
			category, stock, unit pgtype.Int8
			costPrice             pgtype.Numeric
			deleted               bool
		)
		if err := rows.Scan(&p.ID, &p.Name, &category, &stock, &unit, &costPrice, &deleted); err != nil {
			return nil, wrap("scan product", err)
		}
		if p.CostPrice, err = numericToDecimal(costPrice); err != nil {
			return nil, wrap("scan product", fmt.Errorf("products.cost_price: %w", err))
		}
		p.CategoryID = int8Ptr(category)
		p.StockCategoryID = int8Ptr(stock)
		p.DefaultUnitID = int8Ptr(unit)
		p.Lifecycle = LifecycleOf(deleted)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load products", err)
	}
	return products, nil
}

// StockCategories lists every stock category of the tenant.
func (r *Repository) StockCategories(ctx context.Context, tenantID int64) ([]StockCategory, error) {
	const query = `SELECT id, name, is_deleted FROM stock_categories WHERE tenant_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, wrap("load stock categories", err)
	}
	defer rows.Close()

	var categories []StockCategory
	for rows.Next() {
		var (
			c       StockCategory
			deleted bool
		)
		if err := rows.Scan(&c.ID, &c.Name, &deleted); err != nil {
			return nil, wrap("scan stock category", err)
		}
		c.Lifecycle = LifecycleOf(deleted)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load stock categories", err)
	}
	return categories, nil
}

// BOMEdges lists the tenant's live recipe edges.
func (r *Repository) BOMEdges(ctx context.Context, tenantID int64) ([]BOMEdge, error) {
	const query = `SELECT id, product_id, ingredient_id, amount, unit_id
	               FROM bom_edges WHERE tenant_id = $1 AND NOT is_deleted ORDER BY id`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, wrap("load bom edges", err)
	}
	defer rows.Close()

	var edges []BOMEdge
	for rows.Next() {
		var (
			e      BOMEdge
			amount pgtype.Numeric
		)
		if err := rows.Scan(&e.ID, &e.ProductID, &e.IngredientID, &amount, &e.UnitID); err != nil {
			return nil, wrap("scan bom edge", err)
		}
		if e.Amount, err = requiredDecimal(amount, "bom_edges.amount"); err != nil {
			return nil, wrap("scan bom edge", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load bom edges", err)
	}
	return edges, nil
}

// SoldLineItemsPage returns up to limit rows after the cursor ordered by
// (created_at, id).
func (r *Repository) SoldLineItemsPage(ctx context.Context, q SalesQuery, after SalesCursor, limit int) ([]SoldLineItem, error) {
	query, args := salesPageQuery(q, after, limit)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("load sold line items", err)
	}
	defer rows.Close()

	items := make([]SoldLineItem, 0, limit)
	for rows.Next() {
		var (
			item   SoldLineItem
			qty    int32
			status string
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &qty, &status, &item.CreatedAt); err != nil {
			return nil, wrap("scan sold line item", err)
		}
		item.Quantity = int64(qty)
		item.Status = SaleStatus(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("load sold line items", err)
	}
	return items, nil
}
