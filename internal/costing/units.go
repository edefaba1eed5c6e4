package costing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxUnitDepth caps base_unit_id traversal as a cycle fallback.
const MaxUnitDepth = 16

// conversionPlaces is the scale kept when a conversion divides.
const conversionPlaces int32 = 12

// UnitGraph resolves amounts across a forest of convertible units.
type UnitGraph struct {
	units map[int64]Unit
}

// NewUnitGraph indexes the live units; deleted units are unknown to the graph.
func NewUnitGraph(units []Unit) *UnitGraph {
	idx := make(map[int64]Unit, len(units))
	for _, u := range units {
		if !u.Lifecycle.Live() {
			continue
		}
		idx[u.ID] = u
	}
	return &UnitGraph{units: idx}
}

// Unit returns the live unit with the given id.
func (g *UnitGraph) Unit(id int64) (Unit, bool) {
	u, ok := g.units[id]
	return u, ok
}

// Len returns the number of live units.
func (g *UnitGraph) Len() int {
	return len(g.units)
}

// ResolveToBase walks base pointers, multiplying by each hop's ratio, until it
// reaches a unit without base.
func (g *UnitGraph) ResolveToBase(unitID int64, amount decimal.Decimal) (int64, decimal.Decimal, error) {
	cur, ok := g.units[unitID]
	if !ok {
		return 0, decimal.Zero, fmt.Errorf("%w: %d", ErrUnknownUnit, unitID)
	}
	chain := []int64{cur.ID}
	visited := map[int64]struct{}{cur.ID: {}}
	for depth := 0; ; depth++ {
		if cur.IsBase() {
			return cur.ID, amount, nil
		}
		if depth >= MaxUnitDepth {
			return 0, decimal.Zero, &ComputationError{UnitID: unitID, Chain: chain, Reason: ReasonDepthExceeded}
		}
		if !cur.Ratio.IsPositive() {
			return 0, decimal.Zero, &ComputationError{UnitID: cur.ID, Chain: chain, Reason: ReasonInvalidRatio}
		}
		nextID := *cur.BaseUnitID
		if _, seen := visited[nextID]; seen {
			return 0, decimal.Zero, &ComputationError{UnitID: unitID, Chain: append(chain, nextID), Reason: ReasonUnitCycle}
		}
		next, ok := g.units[nextID]
		if !ok {
			return 0, decimal.Zero, fmt.Errorf("%w: %d (base of %d)", ErrUnknownUnit, nextID, cur.ID)
		}
		amount = amount.Mul(cur.Ratio)
		visited[nextID] = struct{}{}
		chain = append(chain, nextID)
		cur = next
	}
}

// Factor returns how many `to` units equal one `from` unit.
func (g *UnitGraph) Factor(from, to int64) (decimal.Decimal, error) {
	if from == to {
		if _, ok := g.units[from]; !ok {
			return decimal.Zero, fmt.Errorf("%w: %d", ErrUnknownUnit, from)
		}
		return decimal.NewFromInt(1), nil
	}
	fromBase, fromAmount, err := g.ResolveToBase(from, decimal.NewFromInt(1))
	if err != nil {
		return decimal.Zero, err
	}
	toBase, toAmount, err := g.ResolveToBase(to, decimal.NewFromInt(1))
	if err != nil {
		return decimal.Zero, err
	}
	if fromBase != toBase {
		return decimal.Zero, &UnitMismatchError{FromUnitID: from, ToUnitID: to, FromBaseID: fromBase, ToBaseID: toBase}
	}
	return fromAmount.DivRound(toAmount, conversionPlaces), nil
}

// Convert expresses amount (in `from`) in the `to` unit.
func (g *UnitGraph) Convert(amount decimal.Decimal, from, to int64) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	fromBase, inBase, err := g.ResolveToBase(from, amount)
	if err != nil {
		return decimal.Zero, err
	}
	toBase, toAmount, err := g.ResolveToBase(to, decimal.NewFromInt(1))
	if err != nil {
		return decimal.Zero, err
	}
	if fromBase != toBase {
		return decimal.Zero, &UnitMismatchError{FromUnitID: from, ToUnitID: to, FromBaseID: fromBase, ToBaseID: toBase}
	}
	return inBase.DivRound(toAmount, conversionPlaces), nil
}

// Compatible reports whether both units reduce to the same base.
func (g *UnitGraph) Compatible(a, b int64) bool {
	baseA, _, err := g.ResolveToBase(a, decimal.Zero)
	if err != nil {
		return false
	}
	baseB, _, err := g.ResolveToBase(b, decimal.Zero)
	if err != nil {
		return false
	}
	return baseA == baseB
}
