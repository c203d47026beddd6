package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCondSetEmpty(t *testing.T) {
	c := &condSet{}
	require.Empty(t, c.where())
	require.Empty(t, c.args)
}

func TestCondSetNumbering(t *testing.T) {
	c := &condSet{}
	c.add("m.branch_id = %s", "branch-1")
	c.add("m.quantity >= %s", decimal.RequireFromString("2"))
	c.add("(m.notes ILIKE %[1]s OR i.name ILIKE %[1]s)", "%milk%")

	require.Equal(t, " WHERE m.branch_id = $1 AND m.quantity >= $2 AND (m.notes ILIKE $3 OR i.name ILIKE $3)", c.where())
	require.Len(t, c.args, 3)
}

func TestBuildMovementConds(t *testing.T) {
	qmin := decimal.RequireFromString("1")
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := buildMovementConds(MovementFilter{
		BranchID:    "branch-1",
		Type:        TransactionTypeWaste,
		ItemName:    "milk",
		QuantityMin: &qmin,
		CreatedFrom: &from,
	})
	require.Equal(t,
		" WHERE m.branch_id = $1 AND m.tx_type = $2 AND i.name ILIKE $3 AND m.quantity >= $4 AND m.created_at >= $5",
		c.where())
	require.Equal(t, "%milk%", c.args[2])
}

func TestBuildMovementCondsUnfiltered(t *testing.T) {
	c := buildMovementConds(MovementFilter{})
	require.Empty(t, c.where())
}

func TestBuildPositionConds(t *testing.T) {
	qmax := decimal.RequireFromString("10")
	c := buildPositionConds(PositionFilter{
		BranchID:     "branch-1",
		DepartmentID: "kitchen",
		Search:       "flour",
		QuantityMax:  &qmax,
	})
	require.Equal(t,
		" WHERE p.branch_id = $1 AND p.department_id = $2 AND i.name ILIKE $3 AND p.quantity <= $4",
		c.where())
}

func TestMovementSortOrder(t *testing.T) {
	require.Equal(t, "m.created_at DESC, m.id DESC", movementSortOrder("", ""))
	require.Equal(t, "m.quantity ASC, m.id ASC", movementSortOrder("quantity", "asc"))
	require.Equal(t, "m.unit_price DESC, m.id DESC", movementSortOrder("unit_price", "desc"))
	require.Equal(t, "m.created_at ASC, m.id ASC", movementSortOrder("nonsense; DROP TABLE", "ASC"))
}
