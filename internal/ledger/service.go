package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/provisio-erp/provisio-erp/internal/masterdata"
	"github.com/provisio-erp/provisio-erp/internal/observability"
	"github.com/provisio-erp/provisio-erp/internal/platform/cache"
	"github.com/provisio-erp/provisio-erp/internal/shared"
)

const defaultMaxRetries = 4

// ServiceParams bundles the ledger writer's collaborators. Audit,
// idempotency, cache and metrics are optional; a nil value disables the
// corresponding side effect.
type ServiceParams struct {
	Repo        RepositoryPort
	Directory   masterdata.Directory
	Audit       *shared.AuditLogger
	Idempotency *shared.IdempotencyStore
	Cache       *cache.Cache
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	MaxRetries  int
}

// Service validates and applies inventory movements, keeping the stock
// position aggregates consistent with the movement stream.
type Service struct {
	repo        RepositoryPort
	directory   masterdata.Directory
	audit       *shared.AuditLogger
	idempotency *shared.IdempotencyStore
	cache       *cache.Cache
	metrics     *observability.Metrics
	logger      *slog.Logger
	maxRetries  int
	now         func() time.Time
}

// NewService constructs the ledger service.
func NewService(p ServiceParams) *Service {
	retries := p.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        p.Repo,
		directory:   p.Directory,
		audit:       p.Audit,
		idempotency: p.Idempotency,
		cache:       p.Cache,
		metrics:     p.Metrics,
		logger:      logger,
		maxRetries:  retries,
		now:         time.Now,
	}
}

// Submit validates, persists and applies one movement. The movement row
// and every touched stock position commit in a single transaction;
// version conflicts with concurrent writers are retried up to the bound.
func (s *Service) Submit(ctx context.Context, in MovementInput) (Movement, error) {
	if err := ValidateMovement(in); err != nil {
		return Movement{}, err
	}
	if err := s.checkReferences(ctx, in); err != nil {
		return Movement{}, err
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, "ledger"); err != nil {
			return Movement{}, err
		}
	}

	now := s.now().UTC()
	m := Movement{
		ID:                      uuid.NewString(),
		ItemID:                  in.ItemID,
		BranchID:                in.BranchID,
		DepartmentID:            in.DepartmentID,
		DestinationBranchID:     in.DestinationBranchID,
		DestinationDepartmentID: in.DestinationDepartmentID,
		Type:                    in.Type,
		Quantity:                in.Quantity,
		SupplierID:              in.SupplierID,
		WasteReason:             in.WasteReason,
		Notes:                   in.Notes,
		ExpiresAt:               in.ExpiresAt,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if in.UnitPrice != nil {
		m.UnitPrice = *in.UnitPrice
	}

	err := s.retry(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.apply(ctx, tx, m)
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, in.IdempotencyKey); delErr != nil {
				s.logger.Warn("idempotency rollback failed", "key", in.IdempotencyKey, "error", delErr)
			}
		}
		return Movement{}, err
	}

	s.afterWrite(ctx, in.Actor, "movement.created", m.ID, map[string]any{
		"type":     string(m.Type),
		"quantity": m.Quantity.String(),
	})
	s.metrics.MovementApplied(string(m.Type))
	return m, nil
}

// Update corrects a stored movement and re-derives the affected stock
// positions from the quantity delta. Type, item and source branch are
// immutable; a TRANSFER's destination may change, which relocates the
// credited quantity between destination positions in the same transaction.
func (s *Service) Update(ctx context.Context, id string, upd MovementUpdate) (Movement, error) {
	if err := s.checkUpdateReferences(ctx, upd); err != nil {
		return Movement{}, err
	}
	var updated Movement
	err := s.retry(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateUpdate(m, upd); err != nil {
			return err
		}

		newDestBranch := m.DestinationBranchID
		newDestDept := m.DestinationDepartmentID
		if upd.DestinationBranchID != nil {
			newDestBranch = *upd.DestinationBranchID
		}
		if upd.DestinationDepartmentID != nil {
			newDestDept = *upd.DestinationDepartmentID
		}
		destChanged := newDestBranch != m.DestinationBranchID || newDestDept != m.DestinationDepartmentID

		switch {
		case destChanged:
			// Undo the whole old effect, then replay against the new
			// destination. The undo issues from the old destination, so a
			// consumed credit blocks the relocation.
			if err := s.applyQuantityDelta(ctx, tx, m, m.Quantity.Neg()); err != nil {
				return err
			}
			m.DestinationBranchID = newDestBranch
			m.DestinationDepartmentID = newDestDept
			if upd.Quantity != nil {
				m.Quantity = *upd.Quantity
			}
			if err := s.applyQuantityDelta(ctx, tx, m, m.Quantity); err != nil {
				return err
			}
		case upd.Quantity != nil && !upd.Quantity.Equal(m.Quantity):
			if err := s.applyQuantityDelta(ctx, tx, m, upd.Quantity.Sub(m.Quantity)); err != nil {
				return err
			}
			m.Quantity = *upd.Quantity
		}
		if upd.SupplierID != nil {
			m.SupplierID = *upd.SupplierID
		}
		if upd.Notes != nil {
			m.Notes = *upd.Notes
		}
		if upd.ExpiresAt != nil {
			m.ExpiresAt = upd.ExpiresAt
		}
		m.UpdatedAt = s.now().UTC()
		if err := tx.UpdateMovement(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}

	s.afterWrite(ctx, upd.Actor, "movement.updated", updated.ID, map[string]any{
		"quantity": updated.Quantity.String(),
	})
	return updated, nil
}

// Reverse removes a movement and rolls its effect out of the affected
// stock positions, in one transaction.
func (s *Service) Reverse(ctx context.Context, id, actor string) error {
	var reversed Movement
	err := s.retry(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		if err := s.applyQuantityDelta(ctx, tx, m, m.Quantity.Neg()); err != nil {
			return err
		}
		if err := tx.DeleteMovement(ctx, m.ID); err != nil {
			return err
		}
		reversed = m
		return nil
	})
	if err != nil {
		return err
	}

	s.afterWrite(ctx, actor, "movement.reversed", reversed.ID, map[string]any{
		"type":     string(reversed.Type),
		"quantity": reversed.Quantity.String(),
	})
	return nil
}

// GetMovement loads a single movement.
func (s *Service) GetMovement(ctx context.Context, id string) (Movement, error) {
	return s.repo.GetMovement(ctx, id)
}

// ListMovements returns filtered movements with the total match count.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	return s.repo.ListMovements(ctx, filter)
}

// GetPosition loads a single stock position.
func (s *Service) GetPosition(ctx context.Context, key PositionKey) (StockPosition, error) {
	return s.repo.GetPosition(ctx, key)
}

type positionPage struct {
	Positions []StockPosition `json:"positions"`
	Total     int             `json:"total"`
}

// ListPositions returns filtered stock positions, served from the
// versioned cache when one is configured.
func (s *Service) ListPositions(ctx context.Context, filter PositionFilter) ([]StockPosition, int, error) {
	key, err := s.cache.BuildKey(ctx, "ledger", "positions", positionFilterKey(filter))
	if err != nil {
		return nil, 0, err
	}
	var page positionPage
	err = s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (interface{}, error) {
		positions, total, err := s.repo.ListPositions(ctx, filter)
		if err != nil {
			return nil, err
		}
		return positionPage{Positions: positions, Total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page.Positions, page.Total, nil
}

// ScanPositions recomputes every position from the movement stream and
// publishes the number of drifting rows.
func (s *Service) ScanPositions(ctx context.Context) ([]PositionDrift, error) {
	drifts, err := s.repo.VerifyPositions(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.PositionDrift(len(drifts))
	for _, d := range drifts {
		s.logger.Warn("stock position drift",
			"key", d.Key.String(), "recorded", d.Recorded.String(), "expected", d.Expected.String())
	}
	return drifts, nil
}

func (s *Service) retry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.repo.WithTx(ctx, fn)
		if errors.Is(err, ErrVersionConflict) {
			s.metrics.ConflictRetried()
			continue
		}
		return err
	}
	return ErrConcurrencyExhausted
}

// apply mutates the stock positions touched by a new movement and appends
// the movement row. Runs inside the writer transaction.
func (s *Service) apply(ctx context.Context, tx TxRepository, m Movement) error {
	src, err := s.loadPosition(ctx, tx, PositionKey{ItemID: m.ItemID, BranchID: m.BranchID, DepartmentID: m.DepartmentID})
	if err != nil {
		return err
	}

	switch m.Type {
	case TransactionTypeIn:
		next := src.receive(m.Quantity, m.UnitPrice, m.CreatedAt)
		if _, err := tx.UpsertPosition(ctx, next, src.Version); err != nil {
			return err
		}
	case TransactionTypeOut, TransactionTypeWaste:
		next, err := src.issue(m.Quantity, m.CreatedAt)
		if err != nil {
			return err
		}
		if _, err := tx.UpsertPosition(ctx, next, src.Version); err != nil {
			return err
		}
	case TransactionTypeTransfer:
		nextSrc, err := src.issue(m.Quantity, m.CreatedAt)
		if err != nil {
			return err
		}
		dest, err := s.loadPosition(ctx, tx, PositionKey{ItemID: m.ItemID, BranchID: m.DestinationBranchID, DepartmentID: m.DestinationDepartmentID})
		if err != nil {
			return err
		}
		nextDest := dest.receive(m.Quantity, src.AvgUnitCost, m.CreatedAt)
		if _, err := tx.UpsertPosition(ctx, nextSrc, src.Version); err != nil {
			return err
		}
		if _, err := tx.UpsertPosition(ctx, nextDest, dest.Version); err != nil {
			return err
		}
	default:
		return &FieldError{Field: "transaction_type", Message: "must be one of IN, OUT, WASTE, TRANSFER"}
	}

	return tx.InsertMovement(ctx, m)
}

// applyQuantityDelta adjusts the positions touched by an existing
// movement as if its quantity changed by delta. A negative delta shrinks
// the movement's effect, down to full reversal.
func (s *Service) applyQuantityDelta(ctx context.Context, tx TxRepository, m Movement, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	at := s.now().UTC()
	src, err := s.loadPosition(ctx, tx, PositionKey{ItemID: m.ItemID, BranchID: m.BranchID, DepartmentID: m.DepartmentID})
	if err != nil {
		return err
	}

	switch m.Type {
	case TransactionTypeIn:
		var next StockPosition
		if delta.IsPositive() {
			next = src.receive(delta, m.UnitPrice, at)
		} else {
			next, err = src.issue(delta.Neg(), at)
			if err != nil {
				return err
			}
		}
		_, err = tx.UpsertPosition(ctx, next, src.Version)
		return err
	case TransactionTypeOut, TransactionTypeWaste:
		var next StockPosition
		if delta.IsPositive() {
			next, err = src.issue(delta, at)
			if err != nil {
				return err
			}
		} else {
			next = src.receive(delta.Neg(), src.AvgUnitCost, at)
		}
		_, err = tx.UpsertPosition(ctx, next, src.Version)
		return err
	case TransactionTypeTransfer:
		dest, err := s.loadPosition(ctx, tx, PositionKey{ItemID: m.ItemID, BranchID: m.DestinationBranchID, DepartmentID: m.DestinationDepartmentID})
		if err != nil {
			return err
		}
		var nextSrc, nextDest StockPosition
		if delta.IsPositive() {
			nextSrc, err = src.issue(delta, at)
			if err != nil {
				return err
			}
			nextDest = dest.receive(delta, src.AvgUnitCost, at)
		} else {
			nextDest, err = dest.issue(delta.Neg(), at)
			if err != nil {
				return err
			}
			nextSrc = src.receive(delta.Neg(), dest.AvgUnitCost, at)
		}
		if _, err := tx.UpsertPosition(ctx, nextSrc, src.Version); err != nil {
			return err
		}
		_, err = tx.UpsertPosition(ctx, nextDest, dest.Version)
		return err
	}
	return nil
}

// loadPosition reads the current position or starts a zero one. A zero
// position carries version 0, which the upsert uses to insert-or-conflict.
func (s *Service) loadPosition(ctx context.Context, tx TxRepository, key PositionKey) (StockPosition, error) {
	pos, err := tx.GetPosition(ctx, key)
	if errors.Is(err, ErrPositionNotFound) {
		return StockPosition{
			ItemID:       key.ItemID,
			BranchID:     key.BranchID,
			DepartmentID: key.DepartmentID,
			Quantity:     decimal.Zero,
			AvgUnitCost:  decimal.Zero,
			TotalValue:   decimal.Zero,
		}, nil
	}
	return pos, err
}

func (s *Service) checkUpdateReferences(ctx context.Context, upd MovementUpdate) error {
	if s.directory == nil {
		return nil
	}
	if upd.DestinationBranchID != nil {
		if err := s.directory.BranchExists(ctx, strings.TrimSpace(*upd.DestinationBranchID)); err != nil {
			return err
		}
	}
	if upd.DestinationDepartmentID != nil && *upd.DestinationDepartmentID != "" {
		if err := s.directory.DepartmentExists(ctx, *upd.DestinationDepartmentID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkReferences(ctx context.Context, in MovementInput) error {
	if s.directory == nil {
		return nil
	}
	if err := s.directory.ItemExists(ctx, in.ItemID); err != nil {
		return err
	}
	if err := s.directory.BranchExists(ctx, in.BranchID); err != nil {
		return err
	}
	if in.DepartmentID != "" {
		if err := s.directory.DepartmentExists(ctx, in.DepartmentID); err != nil {
			return err
		}
	}
	if in.Type == TransactionTypeIn {
		if err := s.directory.SupplierExists(ctx, in.SupplierID); err != nil {
			return err
		}
	}
	if in.Type == TransactionTypeTransfer {
		if err := s.directory.BranchExists(ctx, in.DestinationBranchID); err != nil {
			return err
		}
		if in.DestinationDepartmentID != "" {
			if err := s.directory.DepartmentExists(ctx, in.DestinationDepartmentID); err != nil {
				return err
			}
		}
	}
	return nil
}

// afterWrite records the audit trail and invalidates cached listings.
// Both are best effort after the transaction committed.
func (s *Service) afterWrite(ctx context.Context, actor, action, movementID string, meta map[string]any) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   action,
			Entity:   "movement",
			EntityID: movementID,
			Meta:     meta,
		})
		if err != nil {
			s.logger.Warn("audit record failed", "action", action, "movement_id", movementID, "error", err)
		}
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache invalidation failed", "error", err)
	}
}

func positionFilterKey(f PositionFilter) string {
	qmin, qmax := "", ""
	if f.QuantityMin != nil {
		qmin = f.QuantityMin.String()
	}
	if f.QuantityMax != nil {
		qmax = f.QuantityMax.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%d", f.ItemID, f.BranchID, f.DepartmentID, f.Search, qmin, qmax, f.Page, f.PerPage)
}
