package costing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

type stubDB struct {
	rows     map[string][][]interface{}
	row      []interface{}
	err      error
	lastSQL  string
	lastArgs []interface{}
}

func (s *stubDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, s.err
}

func (s *stubDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	s.lastSQL, s.lastArgs = sql, args
	if s.err != nil {
		return nil, s.err
	}
	for table, values := range s.rows {
		if strings.Contains(sql, "FROM "+table) {
			return &stubRows{values: values, index: -1}, nil
		}
	}
	return &stubRows{index: -1}, nil
}

func (s *stubDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if s.row == nil {
		return &stubRow{err: pgx.ErrNoRows}
	}
	return &stubRow{values: s.row}
}

type stubRow struct {
	values []interface{}
	err    error
}

func (r *stubRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type stubRows struct {
	values [][]interface{}
	index  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if r.index+1 >= len(r.values) {
		return false
	}
	r.index++
	return true
}

func (r *stubRows) Scan(dest ...interface{}) error {
	return assign(r.values[r.index], dest)
}

func (r *stubRows) Values() ([]interface{}, error) {
	return r.values[r.index], nil
}

func assign(values []interface{}, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *int32:
			*d = v.(int32)
		case *string:
			*d = v.(string)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		case *pgtype.Int8:
			if v == nil {
				*d = pgtype.Int8{}
			} else {
				*d = pgtype.Int8{Int64: v.(int64), Valid: true}
			}
		case *pgtype.Numeric:
			if v == nil {
				*d = pgtype.Numeric{}
			} else {
				*d = v.(pgtype.Numeric)
			}
		default:
			return fmt.Errorf("unsupported destination %T", dest[i])
		}
	}
	return nil
}

func numeric(unscaled int64, exp int32) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(unscaled), Exp: exp, Valid: true}
}

func TestTenantNotFound(t *testing.T) {
	repo := newRepository(&stubDB{})
	_, err := repo.Tenant(context.Background(), 7)
	require.ErrorIs(t, err, ErrTenantNotFound)

	repo = newRepository(&stubDB{row: []interface{}{int64(7), "Cafe", "Asia/Jakarta"}})
	tenant, err := repo.Tenant(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "Asia/Jakarta", tenant.Timezone)
}

func TestUnitsScan(t *testing.T) {
	db := &stubDB{rows: map[string][][]interface{}{
		"units": {
			{int64(1), "gram", "g", nil, numeric(1, 0), false},
			{int64(2), "kilogram", "kg", int64(1), numeric(1000000000000000, -12), false},
			{int64(3), "pound", "lb", int64(1), numeric(45359237, -5), true},
		},
	}}
	units, err := newRepository(db).Units(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, units, 3)
	require.Nil(t, units[0].BaseUnitID)
	require.Equal(t, int64(1), *units[1].BaseUnitID)
	require.Equal(t, "1000", units[1].Ratio.String())
	require.Equal(t, "453.59237", units[2].Ratio.String())
	require.Equal(t, LifecycleDeleted, units[2].Lifecycle)
	require.Equal(t, []interface{}{int64(1)}, db.lastArgs)
}

func TestProductsScanNullCost(t *testing.T) {
	db := &stubDB{rows: map[string][][]interface{}{
		"products": {
			{int64(10), "Milk", nil, int64(3), int64(1), numeric(2, -2), false},
			{int64(11), "Water", nil, nil, int64(1), nil, false},
		},
	}}
	products, err := newRepository(db).Products(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, products[0].CostPrice.Valid)
	require.Equal(t, "0.02", products[0].CostPrice.Decimal.String())
	require.Equal(t, int64(3), *products[0].StockCategoryID)
	require.False(t, products[1].CostPrice.Valid)
	require.Nil(t, products[1].StockCategoryID)
}

func TestBOMEdgesRejectNullAmount(t *testing.T) {
	db := &stubDB{rows: map[string][][]interface{}{
		"bom_edges": {{int64(1), int64(10), int64(11), nil, int64(1)}},
	}}
	_, err := newRepository(db).BOMEdges(context.Background(), 1)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "scan bom edge", se.Op)
	require.False(t, se.Retryable)
}

func TestQueryErrorsClassified(t *testing.T) {
	db := &stubDB{err: &pgconn.PgError{Code: "40001", Message: "could not serialize access"}}
	_, err := newRepository(db).StockCategories(context.Background(), 1)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	require.True(t, se.Retryable)

	db.err = &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
	_, err = newRepository(db).StockCategories(context.Background(), 1)
	require.True(t, errors.As(err, &se))
	require.False(t, se.Retryable)
}

func TestSoldLineItemsPage(t *testing.T) {
	at := time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)
	db := &stubDB{rows: map[string][][]interface{}{
		"sale_line_items": {
			{int64(1), int64(100), int32(2), "paid", at},
			{int64(2), int64(101), int32(1), "served", at.Add(time.Minute)},
		},
	}}
	items, err := newRepository(db).SoldLineItemsPage(context.Background(), SalesQuery{
		TenantID: 1,
		From:     at,
		To:       at.Add(24 * time.Hour),
		Statuses: ConsumingStatuses,
	}, SalesCursor{}, 500)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, int64(2), items[0].Quantity)
	require.Equal(t, SaleStatusServed, items[1].Status)
}

func TestSalesPageQuery(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	sql, args := salesPageQuery(SalesQuery{TenantID: 1, From: from, To: to, Statuses: []SaleStatus{"paid"}}, SalesCursor{}, 100)
	require.NotContains(t, sql, "JOIN")
	require.Contains(t, sql, "ORDER BY s.created_at, s.id LIMIT $5")
	require.Equal(t, []interface{}{int64(1), from, to, []string{"paid"}, 100}, args)

	cursor := SalesCursor{CreatedAt: from.Add(time.Hour), ID: 42}
	sql, args = salesPageQuery(SalesQuery{
		TenantID:        1,
		From:            from,
		To:              to,
		Statuses:        ConsumingStatuses,
		ProductIDs:      []int64{5, 6},
		SalesCategoryID: func() *int64 { v := int64(9); return &v }(),
	}, cursor, 100)
	require.Contains(t, sql, "JOIN products p")
	require.Contains(t, sql, "s.product_id = ANY($5)")
	require.Contains(t, sql, "p.category_id = $6")
	require.Contains(t, sql, "(s.created_at, s.id) > ($7, $8)")
	require.Contains(t, sql, "LIMIT $9")
	require.Len(t, args, 9)
	require.Equal(t, int64(42), args[7])
}

func TestNumericToDecimal(t *testing.T) {
	d, err := numericToDecimal(numeric(-125, -3))
	require.NoError(t, err)
	require.Equal(t, "-0.125", d.Decimal.String())

	d, err = numericToDecimal(pgtype.Numeric{})
	require.NoError(t, err)
	require.False(t, d.Valid)

	_, err = numericToDecimal(pgtype.Numeric{NaN: true, Valid: true})
	require.Error(t, err)
}
