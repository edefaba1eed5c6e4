package costing

import (
	"fmt"
	"log/slog"
	"sort"
)

// BOMIndex holds the live recipe edges of one tenant keyed by finished product.
// Edges failing integrity checks are dropped at build time and kept as
// warnings in edge id order.
type BOMIndex struct {
	edges    map[int64][]BOMEdge
	dropped  []Warning
	products map[int64]Product
}

// BuildBOMIndex filters and indexes catalog edges against live products and
// units. It never fails; bad edges are logged and dropped.
func BuildBOMIndex(catalog Catalog, units *UnitGraph, logger *slog.Logger) *BOMIndex {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &BOMIndex{
		edges:    make(map[int64][]BOMEdge),
		products: make(map[int64]Product, len(catalog.Products)),
	}
	for _, p := range catalog.Products {
		if p.Lifecycle.Live() {
			idx.products[p.ID] = p
		}
	}

	for _, edge := range catalog.Edges {
		if !edge.Lifecycle.Live() {
			continue
		}
		if w, bad := idx.check(edge, units); bad {
			idx.dropped = append(idx.dropped, w)
			logger.Warn("bom edge dropped",
				slog.String("kind", string(w.Kind)),
				slog.String("code", string(w.Code)),
				slog.Int64("tenant_id", catalog.TenantID),
				slog.Int64("edge_id", edge.ID),
				slog.Int64("product_id", edge.ProductID),
				slog.Int64("ingredient_id", edge.IngredientID),
			)
			continue
		}
		idx.edges[edge.ProductID] = append(idx.edges[edge.ProductID], edge)
	}

	sort.Slice(idx.dropped, func(i, j int) bool { return idx.dropped[i].EdgeID < idx.dropped[j].EdgeID })
	for productID := range idx.edges {
		edges := idx.edges[productID]
		sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	}
	return idx
}

func (idx *BOMIndex) check(edge BOMEdge, units *UnitGraph) (Warning, bool) {
	if edge.ProductID == edge.IngredientID {
		return newWarning(CodeSelfReference, edge, fmt.Sprintf("edge %d lists product %d as its own ingredient", edge.ID, edge.ProductID)), true
	}
	if _, ok := idx.products[edge.ProductID]; !ok {
		return newWarning(CodeOrphanedEdge, edge, fmt.Sprintf("edge %d references missing or deleted product %d", edge.ID, edge.ProductID)), true
	}
	if _, ok := idx.products[edge.IngredientID]; !ok {
		return newWarning(CodeOrphanedEdge, edge, fmt.Sprintf("edge %d references missing or deleted ingredient %d", edge.ID, edge.IngredientID)), true
	}
	if _, ok := units.Unit(edge.UnitID); !ok {
		return newWarning(CodeOrphanedEdge, edge, fmt.Sprintf("edge %d references missing or deleted unit %d", edge.ID, edge.UnitID)), true
	}
	if !edge.Amount.IsPositive() {
		return newWarning(CodeNonPositiveAmount, edge, fmt.Sprintf("edge %d has non-positive amount %s", edge.ID, edge.Amount.String())), true
	}
	return Warning{}, false
}

// Edges returns the live recipe of a finished product ordered by edge id.
func (idx *BOMIndex) Edges(productID int64) []BOMEdge {
	return idx.edges[productID]
}

// Dropped returns the warnings of every edge removed at build time.
func (idx *BOMIndex) Dropped() []Warning {
	return idx.dropped
}

// Product returns a live product by id.
func (idx *BOMIndex) Product(id int64) (Product, bool) {
	p, ok := idx.products[id]
	return p, ok
}

// EdgeCount returns the number of usable edges.
func (idx *BOMIndex) EdgeCount() int {
	n := 0
	for _, edges := range idx.edges {
		n += len(edges)
	}
	return n
}
