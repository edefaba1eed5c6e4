package costing

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/text/language"
)

// menuCatalog builds products dishes, each with ingredientsPer recipe lines
// drawn from a shared ingredient pool and entered in grams against kg costs.
func menuCatalog(products, ingredientsPer int) Catalog {
	catalog := Catalog{
		TenantID:   1,
		Units:      baseUnits(),
		Categories: []StockCategory{{ID: 10, Name: "Dairy"}, {ID: 11, Name: "Bakery"}},
	}
	const pool = 200
	for i := int64(0); i < pool; i++ {
		catalog.Products = append(catalog.Products, Product{
			ID:              10_000 + i,
			Name:            fmt.Sprintf("Ingredient %03d", i),
			StockCategoryID: ptr(10 + i%2),
			DefaultUnitID:   ptr(unitKg),
			CostPrice:       cost("2.75"),
		})
	}
	var edgeID int64
	for p := int64(1); p <= int64(products); p++ {
		catalog.Products = append(catalog.Products, Product{ID: p, Name: fmt.Sprintf("Dish %d", p), DefaultUnitID: ptr(unitPcs)})
		for j := 0; j < ingredientsPer; j++ {
			edgeID++
			catalog.Edges = append(catalog.Edges, BOMEdge{
				ID:           edgeID,
				ProductID:    p,
				IngredientID: 10_000 + (p*7+int64(j))%pool,
				Amount:       dec("37.5"),
				UnitID:       unitG,
			})
		}
	}
	return catalog
}

func menuSales(n, products int) []SoldLineItem {
	items := make([]SoldLineItem, n)
	for i := range items {
		items[i] = sale(int64(i+1), int64(i%products)+1, int64(i%4)+1, day.Add(time.Duration(i)*time.Second), SaleStatusPaid)
	}
	return items
}

func BenchmarkBuildIndices(b *testing.B) {
	catalog := menuCatalog(500, 8)
	logger := discardLogger()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = BuildIndices(catalog, logger)
	}
}

func BenchmarkAggregateMonth(b *testing.B) {
	ix := BuildIndices(menuCatalog(500, 8), discardLogger())
	items := menuSales(100_000, 500)
	agg := NewAggregator(ix.BOM, ix.Units, discardLogger())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = agg.Aggregate(items)
	}
}

func BenchmarkAssemble(b *testing.B) {
	catalog := menuCatalog(500, 8)
	ix := BuildIndices(catalog, discardLogger())
	aggregation := NewAggregator(ix.BOM, ix.Units, discardLogger()).Aggregate(menuSales(10_000, 500))
	assembler := NewAssembler(language.English)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = assembler.Assemble(aggregation, ix.BOM, ix.Units, ix.Categories, "")
	}
}
