package ledger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *memoryRepo) chi.Router {
	handler := NewHandler(newTestService(repo), nil)
	r := chi.NewRouter()
	r.Route("/ledger", handler.MountRoutes)
	return r
}

func postMovement(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ledger/movements", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateMovementEndpoint(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	rec := postMovement(t, router, `{
		"inventory_item_id": "item-1",
		"branch_id": "branch-1",
		"transaction_type": "IN",
		"quantity": "10",
		"unit_purchase_price": "2.50",
		"supplier_id": "supplier-1"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp MovementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	require.Equal(t, "IN", resp.TransactionType)
	require.True(t, resp.Quantity.Equal(dec("10")))
	require.NotNil(t, resp.UnitPurchasePrice)
}

func TestCreateMovementValidationProblem(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	rec := postMovement(t, router, `{
		"inventory_item_id": "item-1",
		"branch_id": "branch-1",
		"transaction_type": "ADJUST",
		"quantity": "1"
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem struct {
		Title string `json:"title"`
		Field string `json:"field"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Validation Failed", problem.Title)
}

func TestCreateMovementInsufficientStock(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	rec := postMovement(t, router, `{
		"inventory_item_id": "item-1",
		"branch_id": "branch-1",
		"transaction_type": "OUT",
		"quantity": "5"
	}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem struct {
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Insufficient Stock", problem.Title)
}

func TestCreateMovementBadJSON(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	rec := postMovement(t, router, `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMovementNotFound(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	req := httptest.NewRequest(http.MethodGet, "/ledger/movements/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMovementsEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)
	rec := postMovement(t, router, `{
		"inventory_item_id": "item-1",
		"branch_id": "branch-1",
		"transaction_type": "IN",
		"quantity": "10",
		"unit_purchase_price": "2.00",
		"supplier_id": "supplier-1"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/ledger/movements?branch_id=branch-1&transaction_type=in", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list MovementListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Movements, 1)
	require.Equal(t, 1, list.Pagination.Total)
}

func TestListMovementsBadFilter(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	req := httptest.NewRequest(http.MethodGet, "/ledger/movements?quantity_min=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPositionEndpoints(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)
	rec := postMovement(t, router, `{
		"inventory_item_id": "item-1",
		"branch_id": "branch-1",
		"transaction_type": "IN",
		"quantity": "10",
		"unit_purchase_price": "2.00",
		"supplier_id": "supplier-1"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/ledger/positions?branch_id=branch-1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list PositionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Positions, 1)
	require.True(t, list.Positions[0].Quantity.Equal(dec("10")))

	req = httptest.NewRequest(http.MethodGet, "/ledger/positions/item-1/branch-1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var pos PositionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	require.EqualValues(t, 1, pos.Version)
}

func TestUpdateMovementDestinationEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)
	rec := postMovement(t, router, `{
		"inventory_item_id": "item-1",
		"branch_id": "branch-1",
		"transaction_type": "IN",
		"quantity": "10",
		"unit_purchase_price": "2.00",
		"supplier_id": "supplier-1"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postMovement(t, router, `{
		"inventory_item_id": "item-1",
		"branch_id": "branch-1",
		"transaction_type": "TRANSFER",
		"quantity": "4",
		"destination_branch_id": "branch-2"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var transfer MovementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transfer))

	req := httptest.NewRequest(http.MethodPatch, "/ledger/movements/"+transfer.ID,
		strings.NewReader(`{"destination_branch_id": "branch-3"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated MovementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "branch-3", updated.DestinationBranchID)

	stored, err := repo.GetMovement(req.Context(), transfer.ID)
	require.NoError(t, err)
	require.Equal(t, "branch-3", stored.DestinationBranchID)
}

func TestReverseMovementEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)
	rec := postMovement(t, router, `{
		"inventory_item_id": "item-1",
		"branch_id": "branch-1",
		"transaction_type": "IN",
		"quantity": "10",
		"unit_purchase_price": "2.00",
		"supplier_id": "supplier-1"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created MovementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodDelete, "/ledger/movements/"+created.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, repo.movements)
}
