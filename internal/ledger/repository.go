package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/provisio-erp/provisio-erp/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, id string) (Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
	GetPosition(ctx context.Context, key PositionKey) (StockPosition, error)
	ListPositions(ctx context.Context, filter PositionFilter) ([]StockPosition, int, error)
	VerifyPositions(ctx context.Context) ([]PositionDrift, error)
}

// TxRepository exposes the operations available inside a ledger transaction.
type TxRepository interface {
	GetPosition(ctx context.Context, key PositionKey) (StockPosition, error)
	UpsertPosition(ctx context.Context, pos StockPosition, expectedVersion int64) (StockPosition, error)
	InsertMovement(ctx context.Context, m Movement) error
	GetMovement(ctx context.Context, id string) (Movement, error)
	UpdateMovement(ctx context.Context, m Movement) error
	DeleteMovement(ctx context.Context, id string) error
}

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
// Under repeatable read a concurrent writer on the same position row can
// surface as SQLSTATE 40001 instead of the zero-row version guard; both
// mean the snapshot went stale, so both map to ErrVersionConflict and the
// caller's retry loop absorbs them.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if isSerializationFailure(err) {
		return ErrVersionConflict
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

const movementColumns = `m.id, m.item_id, m.branch_id, m.department_id, m.destination_branch_id, m.destination_department_id,
m.tx_type, m.quantity, m.unit_price, m.supplier_id, m.waste_reason, m.notes, m.expires_at, m.created_at, m.updated_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.ItemID, &m.BranchID, &m.DepartmentID, &m.DestinationBranchID, &m.DestinationDepartmentID,
		&m.Type, &m.Quantity, &m.UnitPrice, &m.SupplierID, &m.WasteReason, &m.Notes, &m.ExpiresAt, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// GetMovement loads one movement by id.
func (r *Repository) GetMovement(ctx context.Context, id string) (Movement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements m WHERE m.id = $1`, id)
	m, err := scanMovement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}

// ListMovements returns a page of movements matching the filter plus the
// total match count.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	conds := buildMovementConds(filter)
	base := ` FROM movements m LEFT JOIN inventory_items i ON i.id = m.item_id` + conds.where()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, conds.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args := append(conds.args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT %s%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		movementColumns, base, movementSortOrder(filter.SortBy, filter.SortDir), len(conds.args)+1, len(conds.args)+2)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

const positionColumns = `p.item_id, p.branch_id, p.department_id, p.quantity, p.avg_unit_cost, p.total_value, p.last_movement_at, p.version, p.created_at, p.updated_at`

func scanPosition(row pgx.Row) (StockPosition, error) {
	var p StockPosition
	err := row.Scan(&p.ItemID, &p.BranchID, &p.DepartmentID, &p.Quantity, &p.AvgUnitCost, &p.TotalValue,
		&p.LastMovementAt, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetPosition reads one stock position outside a transaction. The result may
// be stale under concurrency; the writer re-reads inside its transaction.
func (r *Repository) GetPosition(ctx context.Context, key PositionKey) (StockPosition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM stock_positions p WHERE p.item_id = $1 AND p.branch_id = $2 AND p.department_id = $3`,
		key.ItemID, key.BranchID, key.DepartmentID)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockPosition{}, ErrPositionNotFound
	}
	return p, err
}

// ListPositions returns a page of stock positions matching the filter.
func (r *Repository) ListPositions(ctx context.Context, filter PositionFilter) ([]StockPosition, int, error) {
	conds := buildPositionConds(filter)
	base := ` FROM stock_positions p LEFT JOIN inventory_items i ON i.id = p.item_id` + conds.where()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, conds.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args := append(conds.args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT %s%s ORDER BY p.item_id, p.branch_id, p.department_id LIMIT $%d OFFSET $%d`,
		positionColumns, base, len(conds.args)+1, len(conds.args)+2)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	positions := []StockPosition{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, 0, err
		}
		positions = append(positions, p)
	}
	return positions, total, rows.Err()
}

// VerifyPositions recomputes every position quantity from the movement
// stream and reports rows that disagree with the stored aggregate.
func (r *Repository) VerifyPositions(ctx context.Context) ([]PositionDrift, error) {
	rows, err := r.pool.Query(ctx, `WITH effects AS (
  SELECT item_id, branch_id, department_id,
         CASE WHEN tx_type = 'IN' THEN quantity ELSE -quantity END AS qty
  FROM movements
  UNION ALL
  SELECT item_id, destination_branch_id, destination_department_id, quantity
  FROM movements WHERE tx_type = 'TRANSFER'
), expected AS (
  SELECT item_id, branch_id, department_id, SUM(qty) AS qty
  FROM effects GROUP BY item_id, branch_id, department_id
)
SELECT p.item_id, p.branch_id, p.department_id, p.quantity, COALESCE(e.qty, 0)
FROM stock_positions p
LEFT JOIN expected e USING (item_id, branch_id, department_id)
WHERE p.quantity <> COALESCE(e.qty, 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []PositionDrift
	for rows.Next() {
		var d PositionDrift
		if err := rows.Scan(&d.Key.ItemID, &d.Key.BranchID, &d.Key.DepartmentID, &d.Recorded, &d.Expected); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

func (r *txRepository) GetPosition(ctx context.Context, key PositionKey) (StockPosition, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+positionColumns+` FROM stock_positions p WHERE p.item_id = $1 AND p.branch_id = $2 AND p.department_id = $3`,
		key.ItemID, key.BranchID, key.DepartmentID)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockPosition{}, ErrPositionNotFound
	}
	return p, err
}

// UpsertPosition writes the aggregate guarded by the optimistic version.
// The stored total value is always recomputed from quantity and average
// cost, never taken from the caller's struct, so the product cannot drift.
func (r *txRepository) UpsertPosition(ctx context.Context, pos StockPosition, expectedVersion int64) (StockPosition, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO stock_positions
  (item_id, branch_id, department_id, quantity, avg_unit_cost, total_value, last_movement_at, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $4 * $5, $6, 1, NOW(), NOW())
ON CONFLICT (item_id, branch_id, department_id) DO UPDATE SET
  quantity = EXCLUDED.quantity,
  avg_unit_cost = EXCLUDED.avg_unit_cost,
  total_value = EXCLUDED.quantity * EXCLUDED.avg_unit_cost,
  last_movement_at = EXCLUDED.last_movement_at,
  version = stock_positions.version + 1,
  updated_at = NOW()
WHERE stock_positions.version = $7
RETURNING item_id, branch_id, department_id, quantity, avg_unit_cost, total_value, last_movement_at, version, created_at, updated_at`,
		pos.ItemID, pos.BranchID, pos.DepartmentID, pos.Quantity, pos.AvgUnitCost, pos.LastMovementAt, expectedVersion)
	updated, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockPosition{}, ErrVersionConflict
	}
	return updated, err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO movements
  (id, item_id, branch_id, department_id, destination_branch_id, destination_department_id,
   tx_type, quantity, unit_price, supplier_id, waste_reason, notes, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		m.ID, m.ItemID, m.BranchID, m.DepartmentID, m.DestinationBranchID, m.DestinationDepartmentID,
		string(m.Type), m.Quantity, m.UnitPrice, m.SupplierID, m.WasteReason, m.Notes, m.ExpiresAt, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *txRepository) GetMovement(ctx context.Context, id string) (Movement, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements m WHERE m.id = $1 FOR UPDATE`, id)
	m, err := scanMovement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}

func (r *txRepository) UpdateMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `UPDATE movements SET
  quantity = $2, supplier_id = $3, notes = $4, expires_at = $5,
  destination_branch_id = $6, destination_department_id = $7, updated_at = $8
WHERE id = $1`,
		m.ID, m.Quantity, m.SupplierID, m.Notes, m.ExpiresAt,
		m.DestinationBranchID, m.DestinationDepartmentID, m.UpdatedAt)
	return err
}

func (r *txRepository) DeleteMovement(ctx context.Context, id string) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM movements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}
