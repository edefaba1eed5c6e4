package costing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrTenantNotFound indicates the tenant is missing or soft-deleted.
var ErrTenantNotFound = errors.New("costing: tenant not found")

// ErrUnknownUnit indicates a unit id that does not resolve to a live unit.
var ErrUnknownUnit = errors.New("costing: unknown unit")

// ValidationError rejects a malformed request. It aborts the report.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "costing: invalid request: " + e.Reason
	}
	return fmt.Sprintf("costing: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failed read against the backing store. It aborts the
// report; Retryable tells the caller whether trying again may succeed.
type StorageError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("costing: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ComputationReason classifies a ComputationError.
type ComputationReason string

const (
	ReasonUnitCycle     ComputationReason = "cycle"
	ReasonDepthExceeded ComputationReason = "depth_exceeded"
	ReasonInvalidRatio  ComputationReason = "invalid_ratio"
)

// ComputationError reports a unit configuration bug found while walking a
// conversion chain. Edges hitting it are skipped.
type ComputationError struct {
	UnitID int64
	Chain  []int64
	Reason ComputationReason
}

func (e *ComputationError) Error() string {
	chain := make([]string, len(e.Chain))
	for i, id := range e.Chain {
		chain[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("costing: unit %d %s (chain %s)", e.UnitID, e.Reason, strings.Join(chain, "->"))
}

// UnitMismatchError means two units do not reduce to the same base.
type UnitMismatchError struct {
	FromUnitID int64
	ToUnitID   int64
	FromBaseID int64
	ToBaseID   int64
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("costing: unit %d (base %d) cannot convert to unit %d (base %d)", e.FromUnitID, e.FromBaseID, e.ToUnitID, e.ToBaseID)
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
