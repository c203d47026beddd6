// Package masterdata exposes read-only lookups against the master tables
// owned by the surrounding stock manager (items, branches, departments,
// suppliers). The ledger only needs existence checks before accepting a
// movement that references them.
package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Reference kinds reported by ReferenceError.
const (
	KindItem       = "inventory_item"
	KindBranch     = "branch"
	KindDepartment = "department"
	KindSupplier   = "supplier"
)

// ReferenceError reports a referenced master record that does not exist.
type ReferenceError struct {
	Kind string
	ID   string
}

func (e *ReferenceError) Error() string {
	return "masterdata: " + e.Kind + " " + e.ID + " not found"
}

// Directory answers existence checks for master-data references.
type Directory interface {
	ItemExists(ctx context.Context, id string) error
	BranchExists(ctx context.Context, id string) error
	DepartmentExists(ctx context.Context, id string) error
	SupplierExists(ctx context.Context, id string) error
}

// PGDirectory reads the master tables in PostgreSQL.
type PGDirectory struct {
	pool *pgxpool.Pool
}

// NewPGDirectory constructs PGDirectory.
func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

func (d *PGDirectory) ItemExists(ctx context.Context, id string) error {
	return d.exists(ctx, `SELECT EXISTS(SELECT 1 FROM inventory_items WHERE id = $1)`, KindItem, id)
}

func (d *PGDirectory) BranchExists(ctx context.Context, id string) error {
	return d.exists(ctx, `SELECT EXISTS(SELECT 1 FROM branches WHERE id = $1)`, KindBranch, id)
}

func (d *PGDirectory) DepartmentExists(ctx context.Context, id string) error {
	return d.exists(ctx, `SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1)`, KindDepartment, id)
}

func (d *PGDirectory) SupplierExists(ctx context.Context, id string) error {
	return d.exists(ctx, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1)`, KindSupplier, id)
}

func (d *PGDirectory) exists(ctx context.Context, query, kind, id string) error {
	if d == nil || d.pool == nil {
		return errors.New("masterdata: directory not initialised")
	}
	var found bool
	if err := d.pool.QueryRow(ctx, query, id).Scan(&found); err != nil {
		return err
	}
	if !found {
		return &ReferenceError{Kind: kind, ID: id}
	}
	return nil
}
