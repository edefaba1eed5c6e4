package costing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// ConsumptionResult is the unrounded consumption of one ingredient, expressed
// in the ingredient's default unit.
type ConsumptionResult struct {
	IngredientID   int64
	ConsumedAmount decimal.Decimal
	TotalCost      decimal.Decimal
}

// Aggregation is the output of the consumption pass.
type Aggregation struct {
	Results   map[int64]*ConsumptionResult
	Warnings  []Warning
	LineItems int
}

// edgePlan caches the per-edge conversion so repeated sales of the same
// product resolve units once.
type edgePlan struct {
	factor decimal.Decimal
	skip   bool
}

// Aggregator folds sold line items through the BOM index and unit graph.
type Aggregator struct {
	index  *BOMIndex
	units  *UnitGraph
	logger *slog.Logger
}

// NewAggregator wires the request-local indices.
func NewAggregator(index *BOMIndex, units *UnitGraph, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{index: index, units: units, logger: logger}
}

// Aggregate computes consumed amount and cost per ingredient. It never fails:
// edges that cannot be resolved are skipped and reported as warnings.
func (a *Aggregator) Aggregate(items []SoldLineItem) Aggregation {
	results := make(map[int64]*ConsumptionResult)
	warnings := newWarningSet()
	plans := make(map[int64]edgePlan)
	counted := 0

	for _, item := range items {
		if !item.Status.Consuming() || item.Quantity <= 0 {
			continue
		}
		counted++
		edges := a.index.Edges(item.ProductID)
		if len(edges) == 0 {
			continue
		}
		qty := decimal.NewFromInt(item.Quantity)
		for _, edge := range edges {
			plan, ok := plans[edge.ID]
			if !ok {
				plan = a.plan(edge, warnings)
				plans[edge.ID] = plan
			}
			if plan.skip {
				continue
			}
			ingredient, _ := a.index.Product(edge.IngredientID)
			amount := edge.Amount.Mul(qty).Mul(plan.factor)

			acc, ok := results[ingredient.ID]
			if !ok {
				acc = &ConsumptionResult{IngredientID: ingredient.ID}
				results[ingredient.ID] = acc
			}
			acc.ConsumedAmount = acc.ConsumedAmount.Add(amount)
			if ingredient.CostPrice.Valid {
				acc.TotalCost = acc.TotalCost.Add(amount.Mul(ingredient.CostPrice.Decimal))
			} else {
				warnings.add(Warning{
					Kind:         CodeMissingCost.Kind(),
					Code:         CodeMissingCost,
					IngredientID: ingredient.ID,
					Message:      fmt.Sprintf("ingredient %q has no cost price; costed at 0", ingredient.Name),
				})
			}
		}
	}

	// Broken edges are catalog-wide problems; report them once any sale counts.
	if counted > 0 {
		for _, w := range a.index.Dropped() {
			warnings.add(w)
		}
	}
	return Aggregation{Results: results, Warnings: warnings.sorted(), LineItems: counted}
}

// plan resolves the edge-unit to default-unit factor for an edge.
func (a *Aggregator) plan(edge BOMEdge, warnings *warningSet) edgePlan {
	ingredient, ok := a.index.Product(edge.IngredientID)
	if !ok {
		warnings.add(newWarning(CodeOrphanedEdge, edge, fmt.Sprintf("edge %d references missing ingredient %d", edge.ID, edge.IngredientID)))
		return edgePlan{skip: true}
	}
	if ingredient.DefaultUnitID == nil {
		warnings.add(newWarning(CodeMissingDefaultUnit, edge, fmt.Sprintf("ingredient %q has no default unit", ingredient.Name)))
		return edgePlan{skip: true}
	}
	if edge.UnitID == *ingredient.DefaultUnitID {
		return edgePlan{factor: decimal.NewFromInt(1)}
	}

	factor, err := a.units.Factor(edge.UnitID, *ingredient.DefaultUnitID)
	if err == nil {
		return edgePlan{factor: factor}
	}

	var mismatch *UnitMismatchError
	var compErr *ComputationError
	switch {
	case errors.As(err, &mismatch):
		warnings.add(newWarning(CodeUnitMismatch, edge, err.Error()))
		a.logger.Warn("bom edge skipped",
			slog.String("kind", string(KindDataIntegrity)),
			slog.String("code", string(CodeUnitMismatch)),
			slog.Int64("edge_id", edge.ID),
			slog.Any("error", err),
		)
	case errors.As(err, &compErr):
		code := CodeUnitCycle
		switch compErr.Reason {
		case ReasonDepthExceeded:
			code = CodeUnitDepthExceeded
		case ReasonInvalidRatio:
			code = CodeInvalidRatio
		}
		warnings.add(newWarning(code, edge, err.Error()))
		a.logger.Error("unit conversion failed",
			slog.String("kind", string(KindComputation)),
			slog.String("code", string(code)),
			slog.Int64("edge_id", edge.ID),
			slog.Int64("unit_id", compErr.UnitID),
			slog.Any("error", err),
		)
	default:
		warnings.add(newWarning(CodeUnknownUnit, edge, err.Error()))
		a.logger.Warn("bom edge skipped",
			slog.String("kind", string(KindDataIntegrity)),
			slog.String("code", string(CodeUnknownUnit)),
			slog.Int64("edge_id", edge.ID),
			slog.Any("error", err),
		)
	}
	return edgePlan{skip: true}
}
