package costing

import "sort"

// WarningKind separates missing or broken references from configuration bugs.
type WarningKind string

const (
	KindDataIntegrity WarningKind = "data_integrity"
	KindComputation   WarningKind = "computation"
)

// WarningCode identifies the reason an edge or ingredient was degraded.
type WarningCode string

const (
	CodeOrphanedEdge       WarningCode = "orphaned_edge"
	CodeSelfReference      WarningCode = "self_reference"
	CodeNonPositiveAmount  WarningCode = "non_positive_amount"
	CodeUnitMismatch       WarningCode = "unit_mismatch"
	CodeUnknownUnit        WarningCode = "unknown_unit"
	CodeMissingDefaultUnit WarningCode = "missing_default_unit"
	CodeMissingCost        WarningCode = "missing_cost"
	CodeUnitCycle          WarningCode = "unit_cycle"
	CodeUnitDepthExceeded  WarningCode = "unit_depth_exceeded"
	CodeInvalidRatio       WarningCode = "invalid_ratio"
)

// Kind returns the kind a code belongs to.
func (c WarningCode) Kind() WarningKind {
	switch c {
	case CodeUnitCycle, CodeUnitDepthExceeded, CodeInvalidRatio:
		return KindComputation
	default:
		return KindDataIntegrity
	}
}

// Warning is a non-fatal problem attached to a report.
type Warning struct {
	Kind         WarningKind `json:"kind"`
	Code         WarningCode `json:"code"`
	EdgeID       int64       `json:"edge_id,omitempty"`
	ProductID    int64       `json:"product_id,omitempty"`
	IngredientID int64       `json:"ingredient_id,omitempty"`
	Message      string      `json:"message"`
}

func newWarning(code WarningCode, edge BOMEdge, msg string) Warning {
	return Warning{
		Kind:         code.Kind(),
		Code:         code,
		EdgeID:       edge.ID,
		ProductID:    edge.ProductID,
		IngredientID: edge.IngredientID,
		Message:      msg,
	}
}

type warningKey struct {
	code         WarningCode
	edgeID       int64
	ingredientID int64
}

// warningSet keeps one warning per (code, edge) or, for edge-less warnings,
// per (code, ingredient).
type warningSet struct {
	seen  map[warningKey]struct{}
	items []Warning
}

func newWarningSet() *warningSet {
	return &warningSet{seen: make(map[warningKey]struct{})}
}

func (s *warningSet) add(w Warning) bool {
	key := warningKey{code: w.Code, edgeID: w.EdgeID}
	if w.EdgeID == 0 {
		key.ingredientID = w.IngredientID
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, w)
	return true
}

func (s *warningSet) sorted() []Warning {
	out := make([]Warning, len(s.items))
	copy(out, s.items)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.EdgeID != b.EdgeID {
			return a.EdgeID < b.EdgeID
		}
		return a.IngredientID < b.IngredientID
	})
	return out
}
