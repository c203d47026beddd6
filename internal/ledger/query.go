package ledger

import (
	"fmt"
	"strings"
)

// condSet folds optional predicates into a WHERE clause with positional
// args. Every predicate is ANDed; no predicate means no constraint.
type condSet struct {
	conds []string
	args  []any
}

func (c *condSet) add(expr string, vals ...any) {
	start := len(c.args) + 1
	refs := make([]any, 0, len(vals))
	for i := range vals {
		refs = append(refs, fmt.Sprintf("$%d", start+i))
	}
	c.conds = append(c.conds, fmt.Sprintf(expr, refs...))
	c.args = append(c.args, vals...)
}

func (c *condSet) where() string {
	if len(c.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.conds, " AND ")
}

// buildMovementConds translates a MovementFilter into SQL predicates over
// movements m joined to inventory_items i.
func buildMovementConds(f MovementFilter) *condSet {
	c := &condSet{}
	if f.BranchID != "" {
		c.add("m.branch_id = %s", f.BranchID)
	}
	if f.SupplierID != "" {
		c.add("m.supplier_id = %s", f.SupplierID)
	}
	if f.Type != "" {
		c.add("m.tx_type = %s", string(f.Type))
	}
	if f.ItemName != "" {
		c.add("i.name ILIKE %s", "%"+f.ItemName+"%")
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		c.add("(m.notes ILIKE %[1]s OR m.waste_reason ILIKE %[1]s OR i.name ILIKE %[1]s)", pattern)
	}
	if f.QuantityMin != nil {
		c.add("m.quantity >= %s", *f.QuantityMin)
	}
	if f.QuantityMax != nil {
		c.add("m.quantity <= %s", *f.QuantityMax)
	}
	if f.UnitPriceMin != nil {
		c.add("m.unit_price >= %s", *f.UnitPriceMin)
	}
	if f.UnitPriceMax != nil {
		c.add("m.unit_price <= %s", *f.UnitPriceMax)
	}
	if f.ExpiresFrom != nil {
		c.add("m.expires_at >= %s", *f.ExpiresFrom)
	}
	if f.ExpiresTo != nil {
		c.add("m.expires_at <= %s", *f.ExpiresTo)
	}
	if f.CreatedFrom != nil {
		c.add("m.created_at >= %s", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		c.add("m.created_at <= %s", *f.CreatedTo)
	}
	if f.UpdatedFrom != nil {
		c.add("m.updated_at >= %s", *f.UpdatedFrom)
	}
	if f.UpdatedTo != nil {
		c.add("m.updated_at <= %s", *f.UpdatedTo)
	}
	return c
}

// buildPositionConds translates a PositionFilter into SQL predicates over
// stock_positions p joined to inventory_items i.
func buildPositionConds(f PositionFilter) *condSet {
	c := &condSet{}
	if f.ItemID != "" {
		c.add("p.item_id = %s", f.ItemID)
	}
	if f.BranchID != "" {
		c.add("p.branch_id = %s", f.BranchID)
	}
	if f.DepartmentID != "" {
		c.add("p.department_id = %s", f.DepartmentID)
	}
	if f.Search != "" {
		c.add("i.name ILIKE %s", "%"+f.Search+"%")
	}
	if f.QuantityMin != nil {
		c.add("p.quantity >= %s", *f.QuantityMin)
	}
	if f.QuantityMax != nil {
		c.add("p.quantity <= %s", *f.QuantityMax)
	}
	return c
}

// movementSortOrder whitelists sortable columns.
func movementSortOrder(sortBy, sortDir string) string {
	dir := "DESC"
	if strings.EqualFold(sortDir, "asc") {
		dir = "ASC"
	}
	switch sortBy {
	case "quantity":
		return "m.quantity " + dir + ", m.id " + dir
	case "unit_price":
		return "m.unit_price " + dir + ", m.id " + dir
	case "updated_at":
		return "m.updated_at " + dir + ", m.id " + dir
	default:
		return "m.created_at " + dir + ", m.id " + dir
	}
}
