package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validIn() MovementInput {
	price := decimal.RequireFromString("2.50")
	return MovementInput{
		ItemID:     "item-1",
		BranchID:   "branch-1",
		Type:       TransactionTypeIn,
		Quantity:   decimal.RequireFromString("10"),
		UnitPrice:  &price,
		SupplierID: "supplier-1",
	}
}

func TestValidateMovement(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MovementInput)
		field  string
	}{
		{"missing item", func(in *MovementInput) { in.ItemID = " " }, "inventory_item_id"},
		{"missing branch", func(in *MovementInput) { in.BranchID = "" }, "branch_id"},
		{"bad type", func(in *MovementInput) { in.Type = "ADJUST" }, "transaction_type"},
		{"zero quantity", func(in *MovementInput) { in.Quantity = decimal.Zero }, "quantity"},
		{"negative quantity", func(in *MovementInput) { in.Quantity = decimal.RequireFromString("-1") }, "quantity"},
		{"too many decimals", func(in *MovementInput) { in.Quantity = decimal.RequireFromString("1.005") }, "quantity"},
		{"in without price", func(in *MovementInput) { in.UnitPrice = nil }, "unit_purchase_price"},
		{"in negative price", func(in *MovementInput) {
			p := decimal.RequireFromString("-0.01")
			in.UnitPrice = &p
		}, "unit_purchase_price"},
		{"in without supplier", func(in *MovementInput) { in.SupplierID = "" }, "supplier_id"},
		{"waste without reason", func(in *MovementInput) {
			in.Type = TransactionTypeWaste
			in.WasteReason = ""
		}, "waste_reason"},
		{"transfer without destination", func(in *MovementInput) {
			in.Type = TransactionTypeTransfer
			in.DestinationBranchID = ""
		}, "destination_branch_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validIn()
			tc.mutate(&in)
			err := ValidateMovement(in)
			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			require.Equal(t, tc.field, fieldErr.Field)
		})
	}
}

func TestValidateMovementAccepts(t *testing.T) {
	require.NoError(t, ValidateMovement(validIn()))

	out := MovementInput{
		ItemID: "item-1", BranchID: "branch-1",
		Type: TransactionTypeOut, Quantity: decimal.RequireFromString("0.25"),
	}
	require.NoError(t, ValidateMovement(out))

	waste := out
	waste.Type = TransactionTypeWaste
	waste.WasteReason = "expired"
	require.NoError(t, ValidateMovement(waste))

	transfer := out
	transfer.Type = TransactionTypeTransfer
	transfer.DestinationBranchID = "branch-2"
	require.NoError(t, ValidateMovement(transfer))
}

func TestValidateMovementSelfTransfer(t *testing.T) {
	in := validIn()
	in.Type = TransactionTypeTransfer
	in.DestinationBranchID = in.BranchID
	require.ErrorIs(t, ValidateMovement(in), ErrSelfTransfer)

	padded := validIn()
	padded.Type = TransactionTypeTransfer
	padded.DestinationBranchID = " " + padded.BranchID + " "
	require.ErrorIs(t, ValidateMovement(padded), ErrSelfTransfer)
}

func TestValidateUpdate(t *testing.T) {
	m := Movement{Type: TransactionTypeIn, Quantity: decimal.RequireFromString("5")}

	bad := decimal.RequireFromString("-2")
	err := ValidateUpdate(m, MovementUpdate{Quantity: &bad})
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "quantity", fieldErr.Field)

	empty := ""
	err = ValidateUpdate(m, MovementUpdate{SupplierID: &empty})
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "supplier_id", fieldErr.Field)

	good := decimal.RequireFromString("3.25")
	require.NoError(t, ValidateUpdate(m, MovementUpdate{Quantity: &good}))
}

func TestValidateUpdateDestination(t *testing.T) {
	transfer := Movement{Type: TransactionTypeTransfer, BranchID: "branch-1", DestinationBranchID: "branch-2"}

	dest := "branch-3"
	require.NoError(t, ValidateUpdate(transfer, MovementUpdate{DestinationBranchID: &dest}))

	in := Movement{Type: TransactionTypeIn, BranchID: "branch-1"}
	err := ValidateUpdate(in, MovementUpdate{DestinationBranchID: &dest})
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "destination_branch_id", fieldErr.Field)

	blank := "  "
	err = ValidateUpdate(transfer, MovementUpdate{DestinationBranchID: &blank})
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "destination_branch_id", fieldErr.Field)

	padded := " branch-1"
	require.ErrorIs(t, ValidateUpdate(transfer, MovementUpdate{DestinationBranchID: &padded}), ErrSelfTransfer)
}
