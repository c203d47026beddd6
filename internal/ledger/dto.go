package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/provisio-erp/provisio-erp/internal/shared"
)

// CreateMovementRequest is the POST /ledger/movements payload.
type CreateMovementRequest struct {
	InventoryItemID         string           `json:"inventory_item_id" validate:"required"`
	BranchID                string           `json:"branch_id" validate:"required"`
	DepartmentID            string           `json:"department_id"`
	TransactionType         string           `json:"transaction_type" validate:"required,oneof=IN OUT WASTE TRANSFER"`
	Quantity                decimal.Decimal  `json:"quantity" validate:"required"`
	UnitPurchasePrice       *decimal.Decimal `json:"unit_purchase_price"`
	SupplierID              string           `json:"supplier_id"`
	WasteReason             string           `json:"waste_reason"`
	DestinationBranchID     string           `json:"destination_branch_id"`
	DestinationDepartmentID string           `json:"destination_department_id"`
	Notes                   string           `json:"notes"`
	ExpiresAt               *time.Time       `json:"expires_at"`
}

func (r CreateMovementRequest) toInput(idempotencyKey, actor string) MovementInput {
	return MovementInput{
		ItemID:                  r.InventoryItemID,
		BranchID:                r.BranchID,
		DepartmentID:            r.DepartmentID,
		Type:                    TransactionType(r.TransactionType),
		Quantity:                r.Quantity,
		UnitPrice:               r.UnitPurchasePrice,
		SupplierID:              r.SupplierID,
		WasteReason:             r.WasteReason,
		DestinationBranchID:     r.DestinationBranchID,
		DestinationDepartmentID: r.DestinationDepartmentID,
		Notes:                   r.Notes,
		ExpiresAt:               r.ExpiresAt,
		IdempotencyKey:          idempotencyKey,
		Actor:                   actor,
	}
}

// UpdateMovementRequest is the PATCH /ledger/movements/{id} payload.
// Absent fields keep their stored values. Destination fields are only
// accepted on TRANSFER movements.
type UpdateMovementRequest struct {
	Quantity                *decimal.Decimal `json:"quantity"`
	SupplierID              *string          `json:"supplier_id"`
	Notes                   *string          `json:"notes"`
	ExpiresAt               *time.Time       `json:"expires_at"`
	DestinationBranchID     *string          `json:"destination_branch_id"`
	DestinationDepartmentID *string          `json:"destination_department_id"`
}

func (r UpdateMovementRequest) toUpdate(actor string) MovementUpdate {
	return MovementUpdate{
		Quantity:                r.Quantity,
		SupplierID:              r.SupplierID,
		Notes:                   r.Notes,
		ExpiresAt:               r.ExpiresAt,
		DestinationBranchID:     r.DestinationBranchID,
		DestinationDepartmentID: r.DestinationDepartmentID,
		Actor:                   actor,
	}
}

// MovementResponse is the wire shape of a movement.
type MovementResponse struct {
	ID                      string           `json:"id"`
	InventoryItemID         string           `json:"inventory_item_id"`
	BranchID                string           `json:"branch_id"`
	DepartmentID            string           `json:"department_id,omitempty"`
	DestinationBranchID     string           `json:"destination_branch_id,omitempty"`
	DestinationDepartmentID string           `json:"destination_department_id,omitempty"`
	TransactionType         string           `json:"transaction_type"`
	Quantity                decimal.Decimal  `json:"quantity"`
	UnitPurchasePrice       *decimal.Decimal `json:"unit_purchase_price,omitempty"`
	SupplierID              string           `json:"supplier_id,omitempty"`
	WasteReason             string           `json:"waste_reason,omitempty"`
	Notes                   string           `json:"notes,omitempty"`
	ExpiresAt               *time.Time       `json:"expires_at,omitempty"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`
}

func newMovementResponse(m Movement) MovementResponse {
	resp := MovementResponse{
		ID:                      m.ID,
		InventoryItemID:         m.ItemID,
		BranchID:                m.BranchID,
		DepartmentID:            m.DepartmentID,
		DestinationBranchID:     m.DestinationBranchID,
		DestinationDepartmentID: m.DestinationDepartmentID,
		TransactionType:         string(m.Type),
		Quantity:                m.Quantity,
		SupplierID:              m.SupplierID,
		WasteReason:             m.WasteReason,
		Notes:                   m.Notes,
		ExpiresAt:               m.ExpiresAt,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
	if m.Type == TransactionTypeIn {
		price := m.UnitPrice
		resp.UnitPurchasePrice = &price
	}
	return resp
}

// MovementListResponse wraps a movement page.
type MovementListResponse struct {
	Movements  []MovementResponse `json:"movements"`
	Pagination shared.Pagination  `json:"pagination"`
}

// PositionResponse is the wire shape of a stock position.
type PositionResponse struct {
	InventoryItemID string          `json:"inventory_item_id"`
	BranchID        string          `json:"branch_id"`
	DepartmentID    string          `json:"department_id,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	AvgUnitCost     decimal.Decimal `json:"avg_unit_cost"`
	TotalValue      decimal.Decimal `json:"total_value"`
	LastMovementAt  time.Time       `json:"last_movement_at"`
	Version         int64           `json:"version"`
}

func newPositionResponse(p StockPosition) PositionResponse {
	return PositionResponse{
		InventoryItemID: p.ItemID,
		BranchID:        p.BranchID,
		DepartmentID:    p.DepartmentID,
		Quantity:        p.Quantity,
		AvgUnitCost:     p.AvgUnitCost.Round(4),
		TotalValue:      p.TotalValue.Round(2),
		LastMovementAt:  p.LastMovementAt,
		Version:         p.Version,
	}
}

// PositionListResponse wraps a stock position page.
type PositionListResponse struct {
	Positions  []PositionResponse `json:"positions"`
	Pagination shared.Pagination  `json:"pagination"`
}
