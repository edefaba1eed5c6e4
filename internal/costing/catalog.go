package costing

import "log/slog"

// Indices are the typed lookups built once per request from a Catalog.
type Indices struct {
	Units      *UnitGraph
	BOM        *BOMIndex
	Categories map[int64]StockCategory
}

// BuildIndices indexes a catalog snapshot for one report.
func BuildIndices(catalog Catalog, logger *slog.Logger) Indices {
	units := NewUnitGraph(catalog.Units)
	categories := make(map[int64]StockCategory, len(catalog.Categories))
	for _, c := range catalog.Categories {
		if c.Lifecycle.Live() {
			categories[c.ID] = c
		}
	}
	return Indices{
		Units:      units,
		BOM:        BuildBOMIndex(catalog, units, logger),
		Categories: categories,
	}
}
