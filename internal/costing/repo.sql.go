package costing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	platformdb "github.com/odyssey-erp/odyssey-costing/internal/platform/db"
)

func salesPageQuery(q SalesQuery, after SalesCursor, limit int) (string, []interface{}) {
	statuses := make([]string, 0, len(q.Statuses))
	for _, s := range q.Statuses {
		statuses = append(statuses, string(s))
	}

	var b strings.Builder
	b.WriteString(`SELECT s.id, s.product_id, s.quantity, s.status, s.created_at FROM sale_line_items s`)
	if q.SalesCategoryID != nil {
		b.WriteString(` JOIN products p ON p.id = s.product_id AND p.tenant_id = s.tenant_id`)
	}
	b.WriteString(` WHERE s.tenant_id = $1 AND s.created_at >= $2 AND s.created_at < $3 AND s.status = ANY($4)`)
	args := []interface{}{q.TenantID, q.From, q.To, statuses}

	next := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if len(q.ProductIDs) > 0 {
		b.WriteString(` AND s.product_id = ANY(` + next(q.ProductIDs) + `)`)
	}
	if q.SalesCategoryID != nil {
		b.WriteString(` AND p.category_id = ` + next(*q.SalesCategoryID))
	}
	if !after.IsZero() {
		at := next(after.CreatedAt)
		id := next(after.ID)
		b.WriteString(` AND (s.created_at, s.id) > (` + at + `, ` + id + `)`)
	}
	b.WriteString(` ORDER BY s.created_at, s.id LIMIT ` + next(limit))
	return b.String(), args
}

func wrap(op string, err error) error {
	return &StorageError{Op: op, Err: err, Retryable: platformdb.IsRetryable(err)}
}

// numericToDecimal converts a NUMERIC column without going through float64.
func numericToDecimal(n pgtype.Numeric) (decimal.NullDecimal, error) {
	if !n.Valid {
		return decimal.NullDecimal{}, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.NullDecimal{}, errors.New("non-finite numeric")
	}
	if n.Int == nil {
		return decimal.NullDecimal{Decimal: decimal.Zero, Valid: true}, nil
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromBigInt(n.Int, n.Exp), Valid: true}, nil
}

// requiredDecimal converts a NOT NULL numeric column.
func requiredDecimal(n pgtype.Numeric, column string) (decimal.Decimal, error) {
	d, err := numericToDecimal(n)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", column, err)
	}
	if !d.Valid {
		return decimal.Zero, fmt.Errorf("%s is null", column)
	}
	return d.Decimal, nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
