package costing

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	// UncategorizedID is the synthetic bucket for ingredients without a live category.
	UncategorizedID int64 = 0
	// UncategorizedName labels the synthetic bucket.
	UncategorizedName = "Uncategorized"

	costPlaces   int32 = 2
	amountPlaces int32 = 4
)

// ItemLine is one ingredient row of a category.
type ItemLine struct {
	IngredientID   int64           `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name"`
	ConsumedAmount decimal.Decimal `json:"consumed_amount"`
	UnitID         int64           `json:"unit_id"`
	UnitLabel      string          `json:"unit_label"`
	TotalCost      decimal.Decimal `json:"total_cost"`
}

// CategoryReport groups ingredient rows under a stock category.
type CategoryReport struct {
	ID                   int64            `json:"id"`
	Name                 string           `json:"name"`
	SubtotalCost         decimal.Decimal  `json:"subtotal_cost"`
	FilteredSubtotalCost *decimal.Decimal `json:"filtered_subtotal_cost,omitempty"`
	Items                []ItemLine       `json:"items"`
}

// MarshalJSON renders cost with two decimal places.
func (l ItemLine) MarshalJSON() ([]byte, error) {
	type plain ItemLine
	return json.Marshal(struct {
		plain
		TotalCost string `json:"total_cost"`
	}{plain(l), l.TotalCost.StringFixed(costPlaces)})
}

// MarshalJSON renders subtotals with two decimal places.
func (c CategoryReport) MarshalJSON() ([]byte, error) {
	type plain CategoryReport
	return json.Marshal(struct {
		plain
		SubtotalCost         string  `json:"subtotal_cost"`
		FilteredSubtotalCost *string `json:"filtered_subtotal_cost,omitempty"`
	}{plain(c), c.SubtotalCost.StringFixed(costPlaces), fixedCost(c.FilteredSubtotalCost)})
}

func fixedCost(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(costPlaces)
	return &s
}

// Assembly is the grouped, sorted and rounded report body.
type Assembly struct {
	Categories        []CategoryReport
	GrandTotalCost    decimal.Decimal
	FilteredTotalCost *decimal.Decimal
}

// Assembler groups aggregation results by stock category.
type Assembler struct {
	locale language.Tag
}

// NewAssembler builds an Assembler ordering names with the locale's collation.
func NewAssembler(locale language.Tag) *Assembler {
	return &Assembler{locale: locale}
}

type row struct {
	line    ItemLine
	visible bool
}

type bucket struct {
	id       int64
	name     string
	subtotal decimal.Decimal
	filtered decimal.Decimal
	rows     []row
}

// Assemble builds the category tree. The name filter narrows the rows that are
// returned but never changes subtotal or grand totals; when a filter is set the
// filtered totals are recomputed from the visible rows.
func (a *Assembler) Assemble(agg Aggregation, index *BOMIndex, units *UnitGraph, categories map[int64]StockCategory, nameFilter string) Assembly {
	// Collators and casers keep internal buffers; build per call.
	coll := collate.New(a.locale)
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(nameFilter))
	filtering := needle != ""

	buckets := make(map[int64]*bucket)
	for ingredientID, res := range agg.Results {
		ingredient, _ := index.Product(ingredientID)
		catID, catName := categoryOf(ingredient, categories)

		b, ok := buckets[catID]
		if !ok {
			b = &bucket{id: catID, name: catName}
			buckets[catID] = b
		}

		line := ItemLine{
			IngredientID:   ingredientID,
			IngredientName: ingredient.Name,
			ConsumedAmount: res.ConsumedAmount.Round(amountPlaces),
			TotalCost:      res.TotalCost.Round(costPlaces),
		}
		if ingredient.DefaultUnitID != nil {
			line.UnitID = *ingredient.DefaultUnitID
			if u, ok := units.Unit(line.UnitID); ok {
				line.UnitLabel = u.Label()
			}
		}
		visible := !filtering || strings.Contains(fold.String(ingredient.Name), needle)
		b.subtotal = b.subtotal.Add(res.TotalCost)
		if visible {
			b.filtered = b.filtered.Add(res.TotalCost)
		}
		b.rows = append(b.rows, row{line: line, visible: visible})
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if c := coll.CompareString(ordered[i].name, ordered[j].name); c != 0 {
			return c < 0
		}
		return ordered[i].id < ordered[j].id
	})

	out := Assembly{Categories: make([]CategoryReport, 0, len(ordered)), GrandTotalCost: decimal.Zero}
	filteredTotal := decimal.Zero
	for _, b := range ordered {
		rows := b.rows
		// Rows sort on the displayed cost so ties read in name order.
		sort.SliceStable(rows, func(i, j int) bool {
			if c := rows[i].line.TotalCost.Cmp(rows[j].line.TotalCost); c != 0 {
				return c > 0
			}
			if c := coll.CompareString(rows[i].line.IngredientName, rows[j].line.IngredientName); c != 0 {
				return c < 0
			}
			return rows[i].line.IngredientID < rows[j].line.IngredientID
		})

		cat := CategoryReport{
			ID:           b.id,
			Name:         b.name,
			SubtotalCost: b.subtotal.Round(costPlaces),
			Items:        make([]ItemLine, 0, len(rows)),
		}
		for _, r := range rows {
			if r.visible {
				cat.Items = append(cat.Items, r.line)
			}
		}
		out.GrandTotalCost = out.GrandTotalCost.Add(cat.SubtotalCost)
		if filtering {
			sub := b.filtered.Round(costPlaces)
			cat.FilteredSubtotalCost = &sub
			filteredTotal = filteredTotal.Add(sub)
		}
		out.Categories = append(out.Categories, cat)
	}
	if filtering {
		out.FilteredTotalCost = &filteredTotal
	}
	return out
}

func categoryOf(p Product, categories map[int64]StockCategory) (int64, string) {
	if p.StockCategoryID == nil {
		return UncategorizedID, UncategorizedName
	}
	cat, ok := categories[*p.StockCategoryID]
	if !ok || !cat.Lifecycle.Live() {
		return UncategorizedID, UncategorizedName
	}
	return cat.ID, cat.Name
}
