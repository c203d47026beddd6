package ledger

import (
	"strings"
)

// quantityScale is the maximum decimal scale accepted for quantities and prices.
const quantityScale = 2

// ValidateMovement checks a proposed movement against its transaction-type
// rules. It deliberately skips the projected-negative stock check: only the
// writer transaction sees concurrent writers, so the non-negative invariant
// is enforced there and nowhere else.
func ValidateMovement(in MovementInput) error {
	if strings.TrimSpace(in.ItemID) == "" {
		return &FieldError{Field: "inventory_item_id", Message: "required"}
	}
	if strings.TrimSpace(in.BranchID) == "" {
		return &FieldError{Field: "branch_id", Message: "required"}
	}
	if !in.Type.Valid() {
		return &FieldError{Field: "transaction_type", Message: "must be one of IN, OUT, WASTE, TRANSFER"}
	}
	if !in.Quantity.IsPositive() {
		return &FieldError{Field: "quantity", Message: "must be greater than zero"}
	}
	if !in.Quantity.Equal(in.Quantity.Round(quantityScale)) {
		return &FieldError{Field: "quantity", Message: "at most 2 decimal places"}
	}

	switch in.Type {
	case TransactionTypeIn:
		if in.UnitPrice == nil {
			return &FieldError{Field: "unit_purchase_price", Message: "required for IN"}
		}
		if in.UnitPrice.IsNegative() {
			return &FieldError{Field: "unit_purchase_price", Message: "must not be negative"}
		}
		if !in.UnitPrice.Equal(in.UnitPrice.Round(quantityScale)) {
			return &FieldError{Field: "unit_purchase_price", Message: "at most 2 decimal places"}
		}
		if strings.TrimSpace(in.SupplierID) == "" {
			return &FieldError{Field: "supplier_id", Message: "required for IN"}
		}
	case TransactionTypeWaste:
		if strings.TrimSpace(in.WasteReason) == "" {
			return &FieldError{Field: "waste_reason", Message: "required for WASTE"}
		}
	case TransactionTypeTransfer:
		if strings.TrimSpace(in.DestinationBranchID) == "" {
			return &FieldError{Field: "destination_branch_id", Message: "required for TRANSFER"}
		}
		if strings.TrimSpace(in.DestinationBranchID) == strings.TrimSpace(in.BranchID) {
			return ErrSelfTransfer
		}
	}
	return nil
}

// ValidateUpdate checks a movement correction against the stored movement.
func ValidateUpdate(m Movement, upd MovementUpdate) error {
	if upd.Quantity != nil {
		if !upd.Quantity.IsPositive() {
			return &FieldError{Field: "quantity", Message: "must be greater than zero"}
		}
		if !upd.Quantity.Equal(upd.Quantity.Round(quantityScale)) {
			return &FieldError{Field: "quantity", Message: "at most 2 decimal places"}
		}
	}
	if upd.SupplierID != nil && m.Type == TransactionTypeIn && strings.TrimSpace(*upd.SupplierID) == "" {
		return &FieldError{Field: "supplier_id", Message: "required for IN"}
	}
	if (upd.DestinationBranchID != nil || upd.DestinationDepartmentID != nil) && m.Type != TransactionTypeTransfer {
		return &FieldError{Field: "destination_branch_id", Message: "only TRANSFER movements carry a destination"}
	}
	if upd.DestinationBranchID != nil {
		dest := strings.TrimSpace(*upd.DestinationBranchID)
		if dest == "" {
			return &FieldError{Field: "destination_branch_id", Message: "required for TRANSFER"}
		}
		if dest == strings.TrimSpace(m.BranchID) {
			return ErrSelfTransfer
		}
	}
	return nil
}
