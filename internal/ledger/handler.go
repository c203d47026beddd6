package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/provisio-erp/provisio-erp/internal/masterdata"
	"github.com/provisio-erp/provisio-erp/internal/platform/httpx"
	"github.com/provisio-erp/provisio-erp/internal/shared"
)

// Handler exposes the ledger over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) createMovement(w http.ResponseWriter, r *http.Request) {
	var req CreateMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", verrs[0].Error(), fieldName(verrs[0]))
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := req.toInput(r.Header.Get("Idempotency-Key"), actorFrom(r))
	m, err := h.service.Submit(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newMovementResponse(m))
}

func (h *Handler) getMovement(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMovement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newMovementResponse(m))
}

func (h *Handler) updateMovement(w http.ResponseWriter, r *http.Request) {
	var req UpdateMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	m, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.toUpdate(actorFrom(r)))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newMovementResponse(m))
}

func (h *Handler) reverseMovement(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reverse(r.Context(), chi.URLParam(r, "id"), actorFrom(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := movementFilterFromQuery(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	movements, total, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		items = append(items, newMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, MovementListResponse{
		Movements:  items,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) listPositions(w http.ResponseWriter, r *http.Request) {
	filter, err := positionFilterFromQuery(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	positions, total, err := h.service.ListPositions(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]PositionResponse, 0, len(positions))
	for _, p := range positions {
		items = append(items, newPositionResponse(p))
	}
	httpx.JSON(w, http.StatusOK, PositionListResponse{
		Positions:  items,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) getPosition(w http.ResponseWriter, r *http.Request) {
	key := PositionKey{
		ItemID:       chi.URLParam(r, "itemID"),
		BranchID:     chi.URLParam(r, "branchID"),
		DepartmentID: r.URL.Query().Get("department_id"),
	}
	p, err := h.service.GetPosition(r.Context(), key)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPositionResponse(p))
}

// respondError maps the ledger error taxonomy onto problem responses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErr *FieldError
	var refErr *masterdata.ReferenceError
	switch {
	case errors.As(err, &fieldErr):
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", fieldErr.Message, fieldErr.Field)
	case errors.Is(err, ErrSelfTransfer):
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", "destination branch must differ from source branch", "destination_branch_id")
	case errors.As(err, &refErr):
		httpx.Problem(w, http.StatusNotFound, "Unknown Reference", refErr.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", "movement would drive the stock position negative")
	case errors.Is(err, ErrConcurrencyExhausted):
		httpx.Problem(w, http.StatusConflict, "Concurrent Update", "the stock position is being updated concurrently, retry the request")
	case errors.Is(err, ErrMovementNotFound), errors.Is(err, ErrPositionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "a movement with this idempotency key was already accepted")
	default:
		h.logger.Error("ledger request failed", "path", r.URL.Path, "error", err)
		httpx.RespondError(w, err)
	}
}

func movementFilterFromQuery(r *http.Request) (MovementFilter, error) {
	q := r.URL.Query()
	filter := MovementFilter{
		BranchID:   q.Get("branch_id"),
		SupplierID: q.Get("supplier_id"),
		ItemName:   q.Get("item_name"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortDir:    q.Get("sort_dir"),
	}
	if raw := q.Get("transaction_type"); raw != "" {
		t := TransactionType(strings.ToUpper(raw))
		if !t.Valid() {
			return MovementFilter{}, &FieldError{Field: "transaction_type", Message: "must be one of IN, OUT, WASTE, TRANSFER"}
		}
		filter.Type = t
	}
	var err error
	if filter.QuantityMin, err = decimalParam(q.Get("quantity_min"), "quantity_min"); err != nil {
		return MovementFilter{}, err
	}
	if filter.QuantityMax, err = decimalParam(q.Get("quantity_max"), "quantity_max"); err != nil {
		return MovementFilter{}, err
	}
	if filter.UnitPriceMin, err = decimalParam(q.Get("unit_price_min"), "unit_price_min"); err != nil {
		return MovementFilter{}, err
	}
	if filter.UnitPriceMax, err = decimalParam(q.Get("unit_price_max"), "unit_price_max"); err != nil {
		return MovementFilter{}, err
	}
	if filter.ExpiresFrom, err = timeParam(q.Get("expires_from"), "expires_from"); err != nil {
		return MovementFilter{}, err
	}
	if filter.ExpiresTo, err = timeParam(q.Get("expires_to"), "expires_to"); err != nil {
		return MovementFilter{}, err
	}
	if filter.CreatedFrom, err = timeParam(q.Get("created_from"), "created_from"); err != nil {
		return MovementFilter{}, err
	}
	if filter.CreatedTo, err = timeParam(q.Get("created_to"), "created_to"); err != nil {
		return MovementFilter{}, err
	}
	if filter.UpdatedFrom, err = timeParam(q.Get("updated_from"), "updated_from"); err != nil {
		return MovementFilter{}, err
	}
	if filter.UpdatedTo, err = timeParam(q.Get("updated_to"), "updated_to"); err != nil {
		return MovementFilter{}, err
	}
	filter.Page, filter.PerPage = pageParams(q.Get("page"), q.Get("per_page"))
	return filter, nil
}

func positionFilterFromQuery(r *http.Request) (PositionFilter, error) {
	q := r.URL.Query()
	filter := PositionFilter{
		ItemID:       q.Get("inventory_item_id"),
		BranchID:     q.Get("branch_id"),
		DepartmentID: q.Get("department_id"),
		Search:       q.Get("search"),
	}
	var err error
	if filter.QuantityMin, err = decimalParam(q.Get("quantity_min"), "quantity_min"); err != nil {
		return PositionFilter{}, err
	}
	if filter.QuantityMax, err = decimalParam(q.Get("quantity_max"), "quantity_max"); err != nil {
		return PositionFilter{}, err
	}
	filter.Page, filter.PerPage = pageParams(q.Get("page"), q.Get("per_page"))
	return filter, nil
}

func decimalParam(raw, field string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, &FieldError{Field: field, Message: "must be a decimal number"}
	}
	return &d, nil
}

func timeParam(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, &FieldError{Field: field, Message: "must be an RFC3339 timestamp"}
	}
	return &t, nil
}

func pageParams(rawPage, rawPerPage string) (int, int) {
	page := 1
	if v, err := strconv.Atoi(rawPage); err == nil && v > 0 {
		page = v
	}
	perPage := 20
	if v, err := strconv.Atoi(rawPerPage); err == nil && v > 0 {
		if v > 100 {
			v = 100
		}
		perPage = v
	}
	return page, perPage
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "InventoryItemID":
		return "inventory_item_id"
	case "BranchID":
		return "branch_id"
	case "TransactionType":
		return "transaction_type"
	case "Quantity":
		return "quantity"
	default:
		return fe.Field()
	}
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "anonymous"
}
