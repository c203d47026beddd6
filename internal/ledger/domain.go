// Package ledger implements the append-only inventory movement stream and
// the derived stock position aggregate per (item, branch, department) key.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported inventory movements.
type TransactionType string

const (
	// TransactionTypeIn represents a receipt from a supplier.
	TransactionTypeIn TransactionType = "IN"
	// TransactionTypeOut represents regular consumption.
	TransactionTypeOut TransactionType = "OUT"
	// TransactionTypeWaste represents loss, tracked with a reason.
	TransactionTypeWaste TransactionType = "WASTE"
	// TransactionTypeTransfer relocates stock between branches.
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// Valid reports whether t is one of the four known types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIn, TransactionTypeOut, TransactionTypeWaste, TransactionTypeTransfer:
		return true
	}
	return false
}

// Movement is an immutable fact record of a single inventory transaction.
// Type and the owning item/branch never change after creation; the
// remaining fields may be corrected post-hoc.
type Movement struct {
	ID                      string
	ItemID                  string
	BranchID                string
	DepartmentID            string
	DestinationBranchID     string
	DestinationDepartmentID string
	Type                    TransactionType
	Quantity                decimal.Decimal
	UnitPrice               decimal.Decimal
	SupplierID              string
	WasteReason             string
	Notes                   string
	ExpiresAt               *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// PositionKey identifies one stock position. DepartmentID may be empty;
// movements without a department aggregate under the empty key.
type PositionKey struct {
	ItemID       string
	BranchID     string
	DepartmentID string
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.ItemID, k.BranchID, k.DepartmentID)
}

// StockPosition is the continuously-aggregated view of the movement
// history for one key. It is only ever mutated through the ledger writer.
type StockPosition struct {
	ItemID         string
	BranchID       string
	DepartmentID   string
	Quantity       decimal.Decimal
	AvgUnitCost    decimal.Decimal
	TotalValue     decimal.Decimal
	LastMovementAt time.Time
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key returns the position's identifying triple.
func (p StockPosition) Key() PositionKey {
	return PositionKey{ItemID: p.ItemID, BranchID: p.BranchID, DepartmentID: p.DepartmentID}
}

// receive applies an inbound quantity at the given unit price, blending the
// price into the weighted moving average. The first receipt sets the average.
func (p StockPosition) receive(qty, unitPrice decimal.Decimal, at time.Time) StockPosition {
	newQty := p.Quantity.Add(qty)
	avg := unitPrice
	if !p.Quantity.IsZero() {
		avg = p.Quantity.Mul(p.AvgUnitCost).Add(qty.Mul(unitPrice)).Div(newQty)
	}
	p.Quantity = newQty
	p.AvgUnitCost = avg
	p.TotalValue = newQty.Mul(avg)
	p.LastMovementAt = at
	return p
}

// issue applies an outbound quantity. Consumption never changes the cost
// basis of the remaining stock.
func (p StockPosition) issue(qty decimal.Decimal, at time.Time) (StockPosition, error) {
	newQty := p.Quantity.Sub(qty)
	if newQty.IsNegative() {
		return p, ErrInsufficientStock
	}
	p.Quantity = newQty
	p.TotalValue = newQty.Mul(p.AvgUnitCost)
	p.LastMovementAt = at
	return p, nil
}

// PositionDrift reports a stock position that disagrees with the quantity
// implied by the movement history, found by the integrity scan.
type PositionDrift struct {
	Key      PositionKey
	Recorded decimal.Decimal
	Expected decimal.Decimal
}

// MovementInput is a proposed movement before validation.
type MovementInput struct {
	ItemID                  string
	BranchID                string
	DepartmentID            string
	Type                    TransactionType
	Quantity                decimal.Decimal
	UnitPrice               *decimal.Decimal
	SupplierID              string
	WasteReason             string
	DestinationBranchID     string
	DestinationDepartmentID string
	Notes                   string
	ExpiresAt               *time.Time
	IdempotencyKey          string
	Actor                   string
}

// MovementUpdate corrects the non-type-defining fields of a movement.
// Nil fields are left untouched. Destination fields are only valid on
// TRANSFER movements.
type MovementUpdate struct {
	Quantity                *decimal.Decimal
	SupplierID              *string
	Notes                   *string
	ExpiresAt               *time.Time
	DestinationBranchID     *string
	DestinationDepartmentID *string
	Actor                   string
}

// MovementFilter combines optional, conjunctive list predicates. An unset
// field means "no constraint".
type MovementFilter struct {
	BranchID     string
	SupplierID   string
	Type         TransactionType
	ItemName     string
	Search       string
	QuantityMin  *decimal.Decimal
	QuantityMax  *decimal.Decimal
	UnitPriceMin *decimal.Decimal
	UnitPriceMax *decimal.Decimal
	ExpiresFrom  *time.Time
	ExpiresTo    *time.Time
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	UpdatedFrom  *time.Time
	UpdatedTo    *time.Time
	Page         int
	PerPage      int
	SortBy       string
	SortDir      string
}

// PositionFilter narrows stock position listings.
type PositionFilter struct {
	ItemID       string
	BranchID     string
	DepartmentID string
	Search       string
	QuantityMin  *decimal.Decimal
	QuantityMax  *decimal.Decimal
	Page         int
	PerPage      int
}

// FieldError is a validation failure naming the offending field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return "ledger: " + e.Field + ": " + e.Message
}

var (
	// ErrInsufficientStock triggered when a movement would drive a position negative.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrSelfTransfer indicates destination branch equals source branch.
	ErrSelfTransfer = errors.New("ledger: transfer destination equals source")
	// ErrVersionConflict indicates a stale optimistic version on position upsert.
	ErrVersionConflict = errors.New("ledger: stock position version conflict")
	// ErrConcurrencyExhausted is returned after the retry bound is spent.
	ErrConcurrencyExhausted = errors.New("ledger: concurrent writers, retries exhausted")
	// ErrMovementNotFound indicates a missing movement record.
	ErrMovementNotFound = errors.New("ledger: movement not found")
	// ErrPositionNotFound indicates a missing stock position row.
	ErrPositionNotFound = errors.New("ledger: stock position not found")
)
